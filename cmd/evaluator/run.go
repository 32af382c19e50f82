package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mathlabs/evaluator/internal/config"
	"github.com/mathlabs/evaluator/internal/extract"
	"github.com/mathlabs/evaluator/internal/llm/prompts"
	"github.com/mathlabs/evaluator/internal/model"
	"github.com/mathlabs/evaluator/internal/pipeline"
	"github.com/mathlabs/evaluator/internal/sink"
	"github.com/mathlabs/evaluator/internal/source"
	"github.com/mathlabs/evaluator/internal/store"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validate a sample of questions and score the student roster",
		RunE:  runEvaluate,
	}
	f := cmd.Flags()
	f.StringP("mode", "m", string(model.ModeFile), "Data source (file, store)")
	f.StringP("sampler", "s", string(model.SamplerRandom), "Question sampler (random, sequential)")
	f.IntP("sample-size", "n", pipeline.DefaultSampleSize, "Number of questions to evaluate")
	f.IntP("batch-size", "b", pipeline.DefaultBatchSize, "Questions per validation call")
	f.Duration("batch-delay", pipeline.DefaultBatchDelay, "Pause between validation batches")
	f.Bool("shuffle", true, "Allow the validator to request choice shuffling")
	f.String("roster", "roster.yaml", "Model roster YAML file")
	f.StringP("questions-file", "q", "questions.json", "Questions JSON file (file mode)")
	f.StringP("output-file", "o", "evaluations.json", "Runs JSON file (file mode)")
	f.String("db", "evaluator.db", "SQLite database path (store mode)")
	f.String("image-dir", "images", "Directory holding question diagrams")
	f.String("alphabet", extract.DefaultAlphabet, "Valid answer letters")
	f.Duration("call-timeout", 90*time.Second, "Timeout for a single model call")
	f.Int("max-concurrency", 0, "Max in-flight student calls per question (0 = whole roster)")
	f.String("metrics-addr", "", "Expose Prometheus metrics on this address while running")
	f.String("prompts-dir", "", "Directory overriding the built-in prompt templates")
	addLogFlags(cmd)
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the leaderboard for a run",
		RunE:  runReport,
	}
	f := cmd.Flags()
	f.String("run-id", "", "Run to report on (default: latest)")
	f.String("db", "evaluator.db", "SQLite database path")
	f.String("runs-file", "", "Read runs from this JSON file instead of the database")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func nowUTC() time.Time { return time.Now().UTC() }

func runEvaluate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	mode, ok := model.ParseMode(v.GetString("mode"))
	if !ok {
		return fmt.Errorf("invalid mode %q", v.GetString("mode"))
	}
	sampler, ok := model.ParseSampler(v.GetString("sampler"))
	if !ok {
		return fmt.Errorf("invalid sampler %q", v.GetString("sampler"))
	}

	if dir := v.GetString("prompts-dir"); dir != "" {
		if err := prompts.Load(os.DirFS(dir)); err != nil {
			return fmt.Errorf("load prompts: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roster, err := config.LoadRoster(v.GetString("roster"))
	if err != nil {
		return err
	}
	caller, err := roster.BuildCaller(ctx, v.GetDuration("call-timeout"))
	if err != nil {
		return fmt.Errorf("build model caller: %w", err)
	}
	defer caller.Close()
	slog.Info("model routes ready", "validator", roster.Validator.Model, "models", caller.Models())

	parser, err := extract.NewTolerantParser()
	if err != nil {
		return fmt.Errorf("compile correction schema: %w", err)
	}

	var (
		src source.Source
		snk sink.Sink
	)
	switch mode {
	case model.ModeStore:
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		src = source.NewStoreSource(db)
		snk = sink.NewStoreSink(db)
	default:
		src = source.NewFileSource(v.GetString("questions-file"), nil)
		snk = sink.NewFileSink(v.GetString("output-file"))
	}

	if addr := v.GetString("metrics-addr"); addr != "" {
		go serveMetrics(addr)
	}

	cfg := pipeline.Config{
		Mode:           mode,
		Sampler:        sampler,
		SampleSize:     v.GetInt("sample-size"),
		BatchSize:      v.GetInt("batch-size"),
		BatchDelay:     v.GetDuration("batch-delay"),
		ShuffleEnabled: v.GetBool("shuffle"),
		ValidatorModel: roster.Validator.Model,
		Students:       roster.StudentModels(),
		Alphabet:       v.GetString("alphabet"),
		ImageDir:       v.GetString("image-dir"),
		MaxConcurrency: v.GetInt("max-concurrency"),
		Collection:     store.CollectionQuestions,
	}
	ev, err := pipeline.New(cfg, src, caller, parser, snk)
	if err != nil {
		return fmt.Errorf("configure pipeline: %w", err)
	}

	slog.Info("starting run",
		"mode", mode,
		"sampler", sampler,
		"sample_size", cfg.SampleSize,
		"batch_size", cfg.BatchSize,
		"validator", cfg.ValidatorModel,
		"students", len(cfg.Students),
	)
	rec, err := ev.Run(ctx)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			return fmt.Errorf("no questions available: %w", err)
		}
		return err
	}

	slog.Info("run finished",
		"run_id", rec.RunID,
		"questions", len(rec.Questions),
		"overall_accuracy", rec.Summary.OverallAccuracy,
		"avg_question_time_ms", rec.Summary.AvgQuestionTimeMs,
	)
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server stopped", "error", err)
	}
}

func runReport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	runs, err := loadRuns(v)
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	run, err := pickRun(runs, v.GetString("run-id"))
	if err != nil {
		return err
	}
	return writeOutput(v.GetString("output"), model.BuildLeaderboard(run))
}

// pickRun returns the run with the given id, or the most recently evaluated
// run when id is empty.
func pickRun(runs []model.RunRecord, id string) (model.RunRecord, error) {
	if len(runs) == 0 {
		return model.RunRecord{}, errors.New("no runs recorded")
	}
	if id == "" {
		latest := runs[0]
		for _, r := range runs[1:] {
			if r.EvaluatedAt > latest.EvaluatedAt {
				latest = r
			}
		}
		return latest, nil
	}
	for _, r := range runs {
		if r.RunID == id {
			return r, nil
		}
	}
	return model.RunRecord{}, fmt.Errorf("run %s not found", id)
}
