// Package pipeline runs an evaluation: validate questions in batches,
// apply corrections, fan each question out to the student roster and
// aggregate the scores into a run record.
package pipeline

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/mathlabs/evaluator/internal/extract"
	"github.com/mathlabs/evaluator/internal/model"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = time.Second
	DefaultSampleSize = 20
)

// Config holds every setting of a run. It is passed at construction and
// never read from process-wide state.
type Config struct {
	Mode           model.Mode
	Sampler        model.Sampler
	SampleSize     int
	BatchSize      int
	BatchDelay     time.Duration
	ShuffleEnabled bool
	ValidatorModel string
	Students       []string
	Alphabet       string
	ImageDir       string
	// MaxConcurrency caps in-flight student calls per question. Zero means
	// one goroutine per roster member.
	MaxConcurrency int
	Collection     string

	Now  func() time.Time
	Rand *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.SampleSize == 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Alphabet == "" {
		c.Alphabet = extract.DefaultAlphabet
	}
	if c.Collection == "" {
		c.Collection = "questions"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

func (c Config) validate() error {
	var errs []error
	if c.Mode != model.ModeFile && c.Mode != model.ModeStore {
		errs = append(errs, fmt.Errorf("invalid mode %q", c.Mode))
	}
	if c.Sampler != model.SamplerRandom && c.Sampler != model.SamplerSequential {
		errs = append(errs, fmt.Errorf("invalid sampler %q", c.Sampler))
	}
	if c.SampleSize < 1 {
		errs = append(errs, fmt.Errorf("sample size must be positive, got %d", c.SampleSize))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.BatchDelay < 0 {
		errs = append(errs, fmt.Errorf("batch delay must not be negative"))
	}
	if c.ValidatorModel == "" {
		errs = append(errs, errors.New("validator model is required"))
	}
	if len(c.Students) == 0 {
		errs = append(errs, errors.New("student roster is empty"))
	}
	if c.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max concurrency must not be negative"))
	}
	return errors.Join(errs...)
}
