package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"sort"

	"github.com/mathlabs/evaluator/internal/model"
)

const schemaVersionKey = "schema_version"

// FileSource reads questions from a JSON file on every call.
type FileSource struct {
	path string
	rng  *rand.Rand
}

// NewFileSource creates a source for path. A nil rng uses the global
// generator.
func NewFileSource(path string, rng *rand.Rand) *FileSource {
	return &FileSource{path: path, rng: rng}
}

// LoadBatch implements Source.
func (s *FileSource) LoadBatch(ctx context.Context, count int, sampler model.Sampler) ([]model.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := ReadQuestionsFile(s.path)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return []model.Question{}, nil
	}

	switch sampler {
	case model.SamplerSequential:
		if count < len(all) {
			all = all[:count]
		}
		return all, nil
	case model.SamplerRandom:
		return sample(all, count, s.rng), nil
	default:
		return nil, fmt.Errorf("unknown sampler %q", sampler)
	}
}

// ReadQuestionsFile parses a question file and returns its valid records
// sorted by id. The file is either an object keyed by problem id or an
// array of records carrying problem_id.
func ReadQuestionsFile(path string) ([]model.Question, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	out, err := ParseQuestions(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no valid questions: %w", path, ErrNotFound)
	}
	return out, nil
}

// ParseQuestions decodes question JSON in either file layout and returns the
// valid records sorted by id. Invalid records are logged and dropped.
func ParseQuestions(data []byte) ([]model.Question, error) {
	qs, err := decodeQuestions(data)
	if err != nil {
		return nil, err
	}
	out := keepValid(qs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func decodeQuestions(data []byte) ([]model.Question, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		out := make([]model.Question, 0, len(raw))
		for i, r := range raw {
			var q model.Question
			if err := json.Unmarshal(r, &q); err != nil {
				slog.Warn("skipping malformed question", "index", i, "error", err)
				continue
			}
			out = append(out, q)
		}
		return out, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &keyed); err != nil {
		return nil, err
	}
	out := make([]model.Question, 0, len(keyed))
	for id, r := range keyed {
		if id == schemaVersionKey {
			continue
		}
		var q model.Question
		if err := json.Unmarshal(r, &q); err != nil {
			slog.Warn("skipping malformed question", "problem_id", id, "error", err)
			continue
		}
		q.ID = id
		out = append(out, q)
	}
	return out, nil
}
