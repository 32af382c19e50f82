package pipeline

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mathlabs/evaluator/internal/model"
)

// Applicator turns a validator correction into a corrected question copy.
// It is not safe for concurrent use because it shares one RNG.
type Applicator struct {
	validatedBy string
	shuffle     bool
	now         func() time.Time
	rng         *rand.Rand
}

// NewApplicator creates an Applicator. Choices are only shuffled when
// shuffle is true and the correction asks for it.
func NewApplicator(validatedBy string, shuffle bool, now func() time.Time, rng *rand.Rand) *Applicator {
	return &Applicator{validatedBy: validatedBy, shuffle: shuffle, now: now, rng: rng}
}

// Apply returns a corrected copy of q with a validation audit attached.
// After a shuffle the key follows the text of the correct choice, not its
// letter.
func (a *Applicator) Apply(q model.Question, c model.ValidationCorrection) model.Question {
	out := q.Clone()

	origAnswer := q.Key()
	origDifficulty := q.Difficulty
	if origDifficulty == "" {
		origDifficulty = model.DifficultyUnknown
	}

	if c.FinalAnswer != "" && c.FinalAnswer != origAnswer {
		out.Answer.CorrectIDs = []string{c.FinalAnswer}
	}
	out.Difficulty = origDifficulty
	if c.Difficulty != "" && c.Difficulty != origDifficulty {
		out.Difficulty = c.Difficulty
	}

	key := out.Key()
	correctText, known := out.ChoiceText(key)
	if !known {
		slog.Warn("validator answer is not a choice", "problem_id", q.ID, "answer", key)
	}

	shuffled := a.shuffle && c.Shuffle
	if shuffled {
		a.shuffleTexts(out.Choices)
		if known {
			for _, ch := range out.Choices {
				if ch.Text == correctText {
					key = ch.ID
					break
				}
			}
			out.Answer.CorrectIDs = []string{key}
		}
	}

	issues := append([]string{}, c.Issues...)
	out.Validation = &model.ValidationAudit{
		ValidatedBy:        a.validatedBy,
		ValidatedAt:        model.FormatTimestamp(a.now()),
		OriginalAnswer:     origAnswer,
		ValidatorAnswer:    c.FinalAnswer,
		FinalAnswer:        key,
		OriginalDifficulty: origDifficulty,
		FinalDifficulty:    out.Difficulty,
		ShuffleApplied:     shuffled,
		Issues:             issues,
	}
	return out
}

// shuffleTexts permutes choice texts in place while ids keep their
// positions.
func (a *Applicator) shuffleTexts(choices []model.Choice) {
	texts := make([]string, len(choices))
	for i, ch := range choices {
		texts[i] = ch.Text
	}
	a.rng.Shuffle(len(texts), func(i, j int) { texts[i], texts[j] = texts[j], texts[i] })
	for i := range choices {
		choices[i].Text = texts[i]
	}
}
