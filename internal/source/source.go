// Package source selects the questions a run evaluates.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/mathlabs/evaluator/internal/model"
)

// ErrNotFound is returned when the source is missing or holds no usable
// questions.
var ErrNotFound = errors.New("question source unavailable")

// Source yields a batch of questions. Returned questions are copies and may
// be mutated freely.
type Source interface {
	LoadBatch(ctx context.Context, count int, sampler model.Sampler) ([]model.Question, error)
}

// QuestionStore is the subset of the store a StoreSource reads from.
type QuestionStore interface {
	SampleQuestions(n int) ([]model.Question, error)
	FirstQuestions(n int) ([]model.Question, error)
}

// StoreSource draws questions from the question collection in the store.
type StoreSource struct {
	store QuestionStore
}

// NewStoreSource creates a source backed by st.
func NewStoreSource(st QuestionStore) *StoreSource {
	return &StoreSource{store: st}
}

// LoadBatch implements Source.
func (s *StoreSource) LoadBatch(ctx context.Context, count int, sampler model.Sampler) ([]model.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return []model.Question{}, nil
	}

	var (
		qs  []model.Question
		err error
	)
	switch sampler {
	case model.SamplerSequential:
		qs, err = s.store.FirstQuestions(count)
	case model.SamplerRandom:
		qs, err = s.store.SampleQuestions(count)
	default:
		return nil, fmt.Errorf("unknown sampler %q", sampler)
	}
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}

	out := keepValid(qs)
	if len(out) == 0 {
		return nil, fmt.Errorf("store questions: %w", ErrNotFound)
	}
	return out, nil
}

// keepValid drops records that fail validation and returns deep copies of
// the rest.
func keepValid(qs []model.Question) []model.Question {
	out := make([]model.Question, 0, len(qs))
	for _, q := range qs {
		if err := model.ValidateQuestion(q); err != nil {
			slog.Warn("skipping invalid question", "problem_id", q.ID, "error", err)
			continue
		}
		out = append(out, q.Clone())
	}
	return out
}

// sample returns min(count, len(qs)) questions chosen uniformly without
// replacement.
func sample(qs []model.Question, count int, rng *rand.Rand) []model.Question {
	pool := append([]model.Question(nil), qs...)
	swap := func(i, j int) { pool[i], pool[j] = pool[j], pool[i] }
	if rng != nil {
		rng.Shuffle(len(pool), swap)
	} else {
		rand.Shuffle(len(pool), swap)
	}
	if count < len(pool) {
		pool = pool[:count]
	}
	return pool
}
