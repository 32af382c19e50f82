package model

import (
	"encoding/json"
	"maps"
	"strings"
	"time"
)

// SchemaVersion is stamped into every persisted run record.
const SchemaVersion = "eval-run-1.0"

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyUnknown Difficulty = "unknown"
)

// ParseDifficulty normalizes a free-form label. Anything that is not
// easy, medium or hard maps to DifficultyUnknown.
func ParseDifficulty(s string) Difficulty {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d
	default:
		return DifficultyUnknown
	}
}

// UnmarshalJSON normalizes labels such as "Hard" on decode. An empty label
// stays empty.
func (d *Difficulty) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = ""
		return nil
	}
	*d = ParseDifficulty(s)
	return nil
}

// Tags is a list of free-form labels. It decodes from a JSON array or a
// single string.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one == "" {
		*t = nil
		return nil
	}
	*t = Tags{one}
	return nil
}

// Mode selects where questions come from and where run records go.
type Mode string

const (
	ModeFile  Mode = "file"
	ModeStore Mode = "store"
)

// ParseMode parses a mode flag value. "test" and "db" are accepted as
// aliases for file and store.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "test":
		return ModeFile, true
	case "store", "db":
		return ModeStore, true
	}
	return "", false
}

// Sampler selects how a batch of questions is drawn from the source.
type Sampler string

const (
	SamplerRandom     Sampler = "random"
	SamplerSequential Sampler = "sequential"
)

// ParseSampler parses a sampler flag value.
func ParseSampler(s string) (Sampler, bool) {
	switch sp := Sampler(strings.ToLower(strings.TrimSpace(s))); sp {
	case SamplerRandom, SamplerSequential:
		return sp, true
	}
	return "", false
}

// Choice is one labelled option of a multiple-choice question.
type Choice struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// Answer holds the answer key of a question.
type Answer struct {
	CorrectIDs           []string          `json:"correct_ids" validate:"min=1,dive,required"`
	Explanation          string            `json:"explanation,omitempty"`
	DistractorRationales map[string]string `json:"distractor_rationales,omitempty"`
}

// DiagramData references an optional diagram image.
type DiagramData struct {
	ImagePath string `json:"image_path,omitempty"`
	AltText   string `json:"alt_text,omitempty"`
}

// Question is a multiple-choice question record as produced by the
// upstream generator.
type Question struct {
	ID          string           `json:"problem_id" validate:"required"`
	Statement   string           `json:"statement" validate:"required"`
	Choices     []Choice         `json:"choices" validate:"min=2,unique=ID,dive"`
	Answer      Answer           `json:"answer"`
	DiagramData *DiagramData     `json:"diagram_data,omitempty"`
	Difficulty  Difficulty       `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard unknown"`
	Topic       Tags             `json:"topic,omitempty"`
	GradeLevel  Tags             `json:"gradelevel,omitempty"`
	Validation  *ValidationAudit `json:"validation,omitempty"`
}

// Key returns the first correct choice id, or "" if the question has none.
func (q Question) Key() string {
	if len(q.Answer.CorrectIDs) == 0 {
		return ""
	}
	return q.Answer.CorrectIDs[0]
}

// ImagePath returns the diagram reference, or "" when there is none.
func (q Question) ImagePath() string {
	if q.DiagramData == nil {
		return ""
	}
	return q.DiagramData.ImagePath
}

// ChoiceText returns the text of the choice with the given id.
func (q Question) ChoiceText(id string) (string, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c.Text, true
		}
	}
	return "", false
}

// Clone returns a deep copy so a run never mutates the source of record.
func (q Question) Clone() Question {
	out := q
	out.Choices = append([]Choice(nil), q.Choices...)
	out.Answer.CorrectIDs = append([]string(nil), q.Answer.CorrectIDs...)
	out.Answer.DistractorRationales = maps.Clone(q.Answer.DistractorRationales)
	out.Topic = append(Tags(nil), q.Topic...)
	out.GradeLevel = append(Tags(nil), q.GradeLevel...)
	if q.DiagramData != nil {
		d := *q.DiagramData
		out.DiagramData = &d
	}
	if q.Validation != nil {
		v := *q.Validation
		v.Issues = append([]string(nil), q.Validation.Issues...)
		out.Validation = &v
	}
	return out
}

// ValidationCorrection is the validator's judgment for one question.
type ValidationCorrection struct {
	FinalAnswer string     `json:"final_answer"`
	Difficulty  Difficulty `json:"difficulty"`
	Shuffle     bool       `json:"shuffle"`
	Issues      []string   `json:"issues"`
}

// ValidationAudit records what the validator changed on a question during
// one run.
type ValidationAudit struct {
	ValidatedBy        string     `json:"validated_by"`
	ValidatedAt        string     `json:"validated_at"`
	OriginalAnswer     string     `json:"original_answer"`
	ValidatorAnswer    string     `json:"validator_answer"`
	FinalAnswer        string     `json:"final_answer"`
	OriginalDifficulty Difficulty `json:"original_difficulty"`
	FinalDifficulty    Difficulty `json:"final_difficulty"`
	ShuffleApplied     bool       `json:"shuffle_applied"`
	Issues             []string   `json:"issues"`
}

// StudentResult is one student model's scored answer to one question.
type StudentResult struct {
	Model     string  `json:"model" validate:"required"`
	Answer    *string `json:"answer"`
	Correct   bool    `json:"correct"`
	Reasoning string  `json:"reasoning"`
	TimeMs    int64   `json:"time_ms" validate:"gte=0"`
}

// QuestionRef points back at the question a block was built from.
type QuestionRef struct {
	ProblemID  string `json:"problem_id" validate:"required"`
	Collection string `json:"collection"`
}

// QuestionStats holds per-question aggregates.
type QuestionStats struct {
	Accuracy  float64 `json:"accuracy" validate:"gte=0,lte=1"`
	AvgTimeMs int64   `json:"avg_time_ms" validate:"gte=0"`
}

// QuestionBlock aggregates every student result for one question.
type QuestionBlock struct {
	Ref        QuestionRef      `json:"original_mcq_ref"`
	Validation *ValidationAudit `json:"validation" validate:"required"`
	Students   []StudentResult  `json:"student_evaluations" validate:"dive"`
	Stats      QuestionStats    `json:"question_stats"`
}

// RunMetadata carries record-level bookkeeping.
type RunMetadata struct {
	SchemaVersion string `json:"schema_version"`
}

// RunSummary holds run-level aggregates.
type RunSummary struct {
	OverallAccuracy   float64 `json:"overall_accuracy" validate:"gte=0,lte=1"`
	AvgQuestionTimeMs int64   `json:"avg_question_time_ms" validate:"gte=0"`
}

// RunRecord is the persisted result of one evaluation run.
type RunRecord struct {
	RunID           string          `json:"run_id" validate:"required"`
	EvaluatedAt     string          `json:"evaluated_at" validate:"required"`
	Mode            Mode            `json:"mode" validate:"oneof=file store"`
	Sampler         Sampler         `json:"sampler" validate:"oneof=random sequential"`
	BatchSize       int             `json:"batch_size" validate:"gte=1"`
	QuestionCount   int             `json:"question_count"`
	ValidationModel string          `json:"validation_model" validate:"required"`
	StudentModels   []string        `json:"student_models" validate:"min=1"`
	ShuffleEnabled  bool            `json:"shuffle_enabled"`
	Metadata        RunMetadata     `json:"metadata"`
	Questions       []QuestionBlock `json:"questions" validate:"dive"`
	Summary         RunSummary      `json:"summary"`
	Error           string          `json:"error,omitempty"`
}

// FormatTimestamp renders t the way every persisted timestamp is written:
// UTC, second precision, trailing Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// NewRunID derives a run identifier from t at second granularity. Two runs
// started within the same second get the same id.
func NewRunID(t time.Time) string {
	return "run_" + t.UTC().Format("20060102_150405")
}
