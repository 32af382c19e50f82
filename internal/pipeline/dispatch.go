package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/mathlabs/evaluator/internal/extract"
	"github.com/mathlabs/evaluator/internal/llm"
	"github.com/mathlabs/evaluator/internal/llm/prompts"
	"github.com/mathlabs/evaluator/internal/model"
)

// Dispatcher sends a corrected question to every roster member and scores
// the answers.
type Dispatcher struct {
	caller         ModelCaller
	students       []string
	alphabet       string
	imageDir       string
	maxConcurrency int
	collection     string
}

// NewDispatcher creates a Dispatcher from the run configuration.
func NewDispatcher(caller ModelCaller, cfg Config) *Dispatcher {
	return &Dispatcher{
		caller:         caller,
		students:       append([]string(nil), cfg.Students...),
		alphabet:       cfg.Alphabet,
		imageDir:       cfg.ImageDir,
		maxConcurrency: cfg.MaxConcurrency,
		collection:     cfg.Collection,
	}
}

// Evaluate fans q out to the roster, waits for every call to settle and
// returns the scored block. Results follow roster order. A failed call is
// recorded as an incorrect answer, never dropped.
func (d *Dispatcher) Evaluate(ctx context.Context, q model.Question) model.QuestionBlock {
	key := q.Key()
	results := make([]model.StudentResult, len(d.students))

	prompt, err := prompts.BuildStudentPrompt(q)
	if err != nil {
		slog.Error("build student prompt", "problem_id", q.ID, "error", err)
		for i, m := range d.students {
			results[i] = model.StudentResult{Model: m, Reasoning: extract.Reasoning(err.Error())}
		}
		return d.block(q, results)
	}

	img := d.loadImage(q)

	var wg sync.WaitGroup
	var sem chan struct{}
	if d.maxConcurrency > 0 {
		sem = make(chan struct{}, d.maxConcurrency)
	}
	for i, m := range d.students {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			resp := d.caller.Call(ctx, m, prompt, img)
			results[i] = Score(m, resp, key, d.alphabet)
		}()
	}
	wg.Wait()

	return d.block(q, results)
}

func (d *Dispatcher) loadImage(q model.Question) *llm.Image {
	ref := q.ImagePath()
	if ref == "" {
		return nil
	}
	path := filepath.Join(d.imageDir, filepath.Base(ref))
	img, err := llm.LoadImage(path)
	if err != nil {
		slog.Warn("diagram unavailable, sending text only", "problem_id", q.ID, "path", path, "error", err)
		return nil
	}
	return img
}

func (d *Dispatcher) block(q model.Question, results []model.StudentResult) model.QuestionBlock {
	audit := q.Validation
	if audit == nil {
		audit = &model.ValidationAudit{FinalAnswer: q.Key(), Issues: []string{}}
	}
	return model.QuestionBlock{
		Ref:        model.QuestionRef{ProblemID: q.ID, Collection: d.collection},
		Validation: audit,
		Students:   results,
		Stats:      questionStats(results),
	}
}

// Score turns one model response into a scored result. The answer is
// correct only when a letter was extracted and equals key.
func Score(modelID string, resp llm.Response, key, alphabet string) model.StudentResult {
	r := model.StudentResult{
		Model:     modelID,
		Reasoning: extract.Reasoning(resp.Content),
		TimeMs:    resp.ElapsedMs,
	}
	if resp.Error {
		return r
	}
	letter, err := extract.Answer(resp.Content, alphabet)
	if err != nil {
		slog.Debug("no answer extracted", "model", modelID, "error", err)
		return r
	}
	r.Answer = &letter
	r.Correct = letter == key
	return r
}

func questionStats(results []model.StudentResult) model.QuestionStats {
	if len(results) == 0 {
		return model.QuestionStats{}
	}
	var correct int
	var total int64
	for _, r := range results {
		if r.Correct {
			correct++
		}
		total += r.TimeMs
	}
	n := len(results)
	return model.QuestionStats{
		Accuracy:  float64(correct) / float64(n),
		AvgTimeMs: total / int64(n),
	}
}
