// Package importer loads question files into the store.
package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/mathlabs/evaluator/internal/model"
	"github.com/mathlabs/evaluator/internal/source"
)

// Store is the store access an import needs.
type Store interface {
	UpsertQuestion(q model.Question) error
	GetImportedFileHash(path string) (string, error)
	SetImportedFileHash(path, hash string) error
	SetMetadata(key, value string) error
}

// Result reports what an import did.
type Result struct {
	Name      string `json:"name"`
	Hash      string `json:"hash"`
	Imported  int    `json:"imported"`
	Unchanged bool   `json:"unchanged"`
}

// Import upserts every valid question in data. A file whose content hash
// matches the last import under the same name is skipped. A changed file is
// imported again; questions are keyed by problem id so this replaces them.
func Import(st Store, name string, data []byte, now time.Time) (Result, error) {
	res := Result{Name: name, Hash: sha256sum(data)}

	stored, err := st.GetImportedFileHash(name)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if stored == res.Hash {
		slog.Info("questions file unchanged, skipping", "path", name)
		res.Unchanged = true
		return res, nil
	}
	if stored != "" {
		slog.Info("questions file changed since last import, re-importing", "path", name)
	}

	questions, err := source.ParseQuestions(data)
	if err != nil {
		return res, fmt.Errorf("parse %s: %w", name, err)
	}
	for _, q := range questions {
		if err := st.UpsertQuestion(q); err != nil {
			return res, fmt.Errorf("upsert question %s from %s: %w", q.ID, name, err)
		}
		res.Imported++
	}

	if err := st.SetImportedFileHash(name, res.Hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", name, err)
	}
	if err := st.SetMetadata("last_import_at", model.FormatTimestamp(now)); err != nil {
		return res, fmt.Errorf("record import time: %w", err)
	}
	slog.Info("imported questions", "path", name, "count", res.Imported)
	return res, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
