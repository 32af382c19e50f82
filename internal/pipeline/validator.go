package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mathlabs/evaluator/internal/extract"
	"github.com/mathlabs/evaluator/internal/llm"
	"github.com/mathlabs/evaluator/internal/llm/prompts"
	"github.com/mathlabs/evaluator/internal/model"
)

// ErrValidationBatchFailed marks a batch whose questions must all be
// skipped.
var ErrValidationBatchFailed = errors.New("validation batch failed")

// ModelCaller is the model access the pipeline needs. llm.Caller satisfies it.
type ModelCaller interface {
	Call(ctx context.Context, modelID, prompt string, img *llm.Image) llm.Response
}

// Validator asks the validator model to certify or correct a batch of
// questions in one call.
type Validator struct {
	caller   ModelCaller
	parser   extract.CorrectionParser
	model    string
	alphabet string
}

// NewValidator creates a Validator that calls modelID.
func NewValidator(caller ModelCaller, parser extract.CorrectionParser, modelID, alphabet string) *Validator {
	return &Validator{caller: caller, parser: parser, model: modelID, alphabet: alphabet}
}

// Validate returns one correction per question, index-aligned with batch.
// Any failure voids the whole batch: the result is empty and the error
// wraps ErrValidationBatchFailed.
func (v *Validator) Validate(ctx context.Context, batch []model.Question) ([]model.ValidationCorrection, error) {
	prompt, err := prompts.BuildValidationPrompt(batch, v.alphabet)
	if err != nil {
		return []model.ValidationCorrection{}, fmt.Errorf("%w: build prompt: %w", ErrValidationBatchFailed, err)
	}

	resp := v.caller.Call(ctx, v.model, prompt, nil)
	if resp.Error {
		return []model.ValidationCorrection{}, fmt.Errorf("%w: call %s: %s", ErrValidationBatchFailed, v.model, resp.Content)
	}

	corrections, err := v.parser.ParseCorrections(resp.Content)
	if err != nil {
		slog.Debug("unparseable validator response", "model", v.model, "raw", extract.Truncate(resp.Content, 500))
		return []model.ValidationCorrection{}, fmt.Errorf("%w: %w", ErrValidationBatchFailed, err)
	}
	if len(corrections) != len(batch) {
		return []model.ValidationCorrection{}, fmt.Errorf("%w: got %d corrections for %d questions: %w",
			ErrValidationBatchFailed, len(corrections), len(batch), extract.ErrCountMismatch)
	}

	slog.Debug("batch validated", "model", v.model, "questions", len(batch), "elapsed_ms", resp.ElapsedMs)
	return corrections, nil
}
