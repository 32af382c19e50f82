package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mathlabs/evaluator/internal/extract"
	"github.com/mathlabs/evaluator/internal/model"
	"github.com/mathlabs/evaluator/internal/sink"
	"github.com/mathlabs/evaluator/internal/source"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mathlabs",
		Subsystem: "pipeline",
		Name:      "batches_total",
		Help:      "Validation batches by outcome",
	}, []string{"outcome"})

	questionsScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mathlabs",
		Subsystem: "pipeline",
		Name:      "questions_scored_total",
		Help:      "Questions dispatched to the student roster and scored",
	})

	runAccuracy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mathlabs",
		Subsystem: "pipeline",
		Name:      "last_run_accuracy",
		Help:      "Overall accuracy of the most recent run",
	})
)

// Evaluator wires a source, the model caller and a sink into one run.
type Evaluator struct {
	cfg        Config
	source     source.Source
	sink       sink.Sink
	validator  *Validator
	applicator *Applicator
	dispatcher *Dispatcher
}

// New validates cfg and builds an Evaluator.
func New(cfg Config, src source.Source, caller ModelCaller, parser extract.CorrectionParser, snk sink.Sink) (*Evaluator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Evaluator{
		cfg:        cfg,
		source:     src,
		sink:       snk,
		validator:  NewValidator(caller, parser, cfg.ValidatorModel, cfg.Alphabet),
		applicator: NewApplicator(cfg.ValidatorModel, cfg.ShuffleEnabled, cfg.Now, cfg.Rand),
		dispatcher: NewDispatcher(caller, cfg),
	}, nil
}

// Run executes one evaluation and persists its record. Batches run one after
// another; a failed batch is skipped and the run continues. Only a source
// or sink failure, or cancellation, is returned as an error.
func (e *Evaluator) Run(ctx context.Context) (model.RunRecord, error) {
	cfg := e.cfg
	runID := model.NewRunID(cfg.Now())
	log := slog.With("run_id", runID)

	questions, err := e.source.LoadBatch(ctx, cfg.SampleSize, cfg.Sampler)
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("load questions: %w", err)
	}
	log.Info("run started", "questions", len(questions), "mode", cfg.Mode, "sampler", cfg.Sampler,
		"batch_size", cfg.BatchSize, "validator", cfg.ValidatorModel, "students", len(cfg.Students))

	var blocks []model.QuestionBlock
	for start := 0; start < len(questions); start += cfg.BatchSize {
		if start > 0 {
			if err := sleep(ctx, cfg.BatchDelay); err != nil {
				return model.RunRecord{}, fmt.Errorf("run %s interrupted: %w", runID, err)
			}
		}
		end := min(start+cfg.BatchSize, len(questions))
		batch := questions[start:end]

		corrections, err := e.validator.Validate(ctx, batch)
		if err != nil {
			batchesTotal.WithLabelValues("failed").Inc()
			log.Warn("skipping batch", "first", batch[0].ID, "size", len(batch), "error", err)
			continue
		}
		batchesTotal.WithLabelValues("validated").Inc()

		for i, q := range batch {
			corrected := e.applicator.Apply(q, corrections[i])
			block := e.dispatcher.Evaluate(ctx, corrected)
			questionsScored.Inc()
			log.Info("question scored", "problem_id", q.ID, "accuracy", block.Stats.Accuracy,
				"avg_time_ms", block.Stats.AvgTimeMs)
			blocks = append(blocks, block)
		}
	}
	if err := ctx.Err(); err != nil {
		return model.RunRecord{}, fmt.Errorf("run %s interrupted: %w", runID, err)
	}

	rec := Finalize(RunMeta{
		RunID:           runID,
		EvaluatedAt:     model.FormatTimestamp(cfg.Now()),
		Mode:            cfg.Mode,
		Sampler:         cfg.Sampler,
		BatchSize:       cfg.BatchSize,
		ValidationModel: cfg.ValidatorModel,
		StudentModels:   cfg.Students,
		ShuffleEnabled:  cfg.ShuffleEnabled,
	}, blocks)
	if rec.Error != "" {
		log.Warn("run has no scored questions", "error", rec.Error)
	}

	if err := e.sink.Persist(ctx, rec); err != nil {
		return rec, fmt.Errorf("persist run %s: %w", runID, err)
	}
	runAccuracy.Set(rec.Summary.OverallAccuracy)
	log.Info("run complete", "questions", rec.QuestionCount, "overall_accuracy", rec.Summary.OverallAccuracy,
		"avg_question_time_ms", rec.Summary.AvgQuestionTimeMs)
	return rec, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
