package model

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateQuestion checks that a question carries everything a run needs:
// an id, a statement, at least two uniquely labelled choices and a key.
func ValidateQuestion(q Question) error {
	if err := structValidator().Struct(q); err != nil {
		return fmt.Errorf("question %q: %w", q.ID, err)
	}
	return nil
}

// ValidateRun checks a run record before it is persisted.
func ValidateRun(r RunRecord) error {
	if err := structValidator().Struct(r); err != nil {
		return fmt.Errorf("run %q: %w", r.RunID, err)
	}
	return nil
}
