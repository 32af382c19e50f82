// Package sink persists run records.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mathlabs/evaluator/internal/model"
)

// Sink stores a run record. Persisting the same run id twice leaves a
// single record holding the latest content.
type Sink interface {
	Persist(ctx context.Context, rec model.RunRecord) error
}

// RunStore is the subset of the store a StoreSink writes to.
type RunStore interface {
	UpsertRun(r model.RunRecord) error
}

// StoreSink upserts records into the evaluations collection.
type StoreSink struct {
	store RunStore
}

// NewStoreSink creates a sink backed by st.
func NewStoreSink(st RunStore) *StoreSink {
	return &StoreSink{store: st}
}

// Persist implements Sink.
func (s *StoreSink) Persist(ctx context.Context, rec model.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := model.ValidateRun(rec); err != nil {
		return fmt.Errorf("validate run: %w", err)
	}
	if err := s.store.UpsertRun(rec); err != nil {
		return fmt.Errorf("upsert run %s: %w", rec.RunID, err)
	}
	slog.Info("run persisted", "run_id", rec.RunID, "sink", "store", "questions", len(rec.Questions))
	return nil
}

// FileSink keeps every run in one JSON array file.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Persist implements Sink. The file is rewritten through a temporary file
// so a crash never leaves it half-written.
func (s *FileSink) Persist(ctx context.Context, rec model.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := model.ValidateRun(rec); err != nil {
		return fmt.Errorf("validate run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := ReadRunsFile(s.path)
	if err != nil {
		return err
	}

	replaced := false
	for i := range runs {
		if runs[i].RunID == rec.RunID {
			runs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		runs = append(runs, rec)
	}

	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal runs: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	slog.Info("run persisted", "run_id", rec.RunID, "sink", "file", "path", s.path, "replaced", replaced)
	return nil
}

// ReadRunsFile reads a run array file. A missing or empty file yields an
// empty slice.
func ReadRunsFile(path string) ([]model.RunRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.RunRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.RunRecord{}, nil
	}
	var runs []model.RunRecord
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return runs, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
