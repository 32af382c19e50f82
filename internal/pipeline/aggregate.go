package pipeline

import "github.com/mathlabs/evaluator/internal/model"

// ErrAllBatchesFailed is the error text recorded on a run with no scored
// questions.
const ErrAllBatchesFailed = "all validation batches failed"

// RunMeta is the run-level information copied into the record.
type RunMeta struct {
	RunID           string
	EvaluatedAt     string
	Mode            model.Mode
	Sampler         model.Sampler
	BatchSize       int
	ValidationModel string
	StudentModels   []string
	ShuffleEnabled  bool
}

// Finalize builds the run record. Overall accuracy is the unweighted mean of
// per-question accuracies. A run with no blocks is still well-formed and
// carries an error marker.
func Finalize(meta RunMeta, blocks []model.QuestionBlock) model.RunRecord {
	if blocks == nil {
		blocks = []model.QuestionBlock{}
	}
	rec := model.RunRecord{
		RunID:           meta.RunID,
		EvaluatedAt:     meta.EvaluatedAt,
		Mode:            meta.Mode,
		Sampler:         meta.Sampler,
		BatchSize:       meta.BatchSize,
		QuestionCount:   len(blocks),
		ValidationModel: meta.ValidationModel,
		StudentModels:   append([]string{}, meta.StudentModels...),
		ShuffleEnabled:  meta.ShuffleEnabled,
		Metadata:        model.RunMetadata{SchemaVersion: model.SchemaVersion},
		Questions:       blocks,
	}
	if len(blocks) == 0 {
		rec.Error = ErrAllBatchesFailed
		return rec
	}

	var accSum float64
	var timeSum int64
	for _, b := range blocks {
		accSum += b.Stats.Accuracy
		timeSum += b.Stats.AvgTimeMs
	}
	n := len(blocks)
	rec.Summary = model.RunSummary{
		OverallAccuracy:   accSum / float64(n),
		AvgQuestionTimeMs: timeSum / int64(n),
	}
	return rec
}
