package model

import (
	"math"
	"sort"
)

// LatencyPenalty is the rubric points deducted per second of mean latency.
const LatencyPenalty = 1.5

// ModelStanding is one roster member's row on the leaderboard.
type ModelStanding struct {
	Model       string  `json:"model"`
	Questions   int     `json:"questions"`
	Correct     int     `json:"correct"`
	AccuracyPct float64 `json:"accuracy_pct"`
	AvgLatencyS float64 `json:"avg_latency_s"`
	Rubric      float64 `json:"rubric"`
}

// QuestionPassRate is the share of the roster that answered a question
// correctly.
type QuestionPassRate struct {
	ProblemID  string     `json:"problem_id"`
	Difficulty Difficulty `json:"difficulty"`
	PassRate   float64    `json:"pass_rate"`
}

// Leaderboard ranks the student models of a single run.
type Leaderboard struct {
	RunID     string             `json:"run_id"`
	Standings []ModelStanding    `json:"standings"`
	Questions []QuestionPassRate `json:"questions"`
}

// BuildLeaderboard ranks models by rubric score: accuracy in percent minus
// LatencyPenalty per second of mean latency, floored at zero. Ties are
// broken by model name.
func BuildLeaderboard(run RunRecord) Leaderboard {
	type tally struct {
		n, correct int
		totalMs    int64
	}
	tallies := make(map[string]*tally)
	order := make([]string, 0, len(run.StudentModels))
	for _, m := range run.StudentModels {
		if _, ok := tallies[m]; !ok {
			tallies[m] = &tally{}
			order = append(order, m)
		}
	}

	lb := Leaderboard{
		RunID:     run.RunID,
		Standings: []ModelStanding{},
		Questions: make([]QuestionPassRate, 0, len(run.Questions)),
	}
	for _, block := range run.Questions {
		for _, r := range block.Students {
			t, ok := tallies[r.Model]
			if !ok {
				t = &tally{}
				tallies[r.Model] = t
				order = append(order, r.Model)
			}
			t.n++
			t.totalMs += r.TimeMs
			if r.Correct {
				t.correct++
			}
		}
		var diff Difficulty
		if block.Validation != nil {
			diff = block.Validation.FinalDifficulty
		}
		lb.Questions = append(lb.Questions, QuestionPassRate{
			ProblemID:  block.Ref.ProblemID,
			Difficulty: diff,
			PassRate:   block.Stats.Accuracy,
		})
	}

	for _, m := range order {
		t := tallies[m]
		s := ModelStanding{Model: m, Questions: t.n, Correct: t.correct}
		if t.n > 0 {
			s.AccuracyPct = 100 * float64(t.correct) / float64(t.n)
			s.AvgLatencyS = float64(t.totalMs) / float64(t.n) / 1000
		}
		s.Rubric = math.Max(0, s.AccuracyPct-LatencyPenalty*s.AvgLatencyS)
		lb.Standings = append(lb.Standings, s)
	}
	sort.SliceStable(lb.Standings, func(i, j int) bool {
		a, b := lb.Standings[i], lb.Standings[j]
		if a.Rubric != b.Rubric {
			return a.Rubric > b.Rubric
		}
		return a.Model < b.Model
	})
	return lb
}
