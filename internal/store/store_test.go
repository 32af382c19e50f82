package store

import (
	"testing"

	"github.com/mathlabs/evaluator/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestQuestion(t *testing.T, s *Store, id string, difficulty model.Difficulty, topics ...string) {
	t.Helper()
	err := s.UpsertQuestion(model.Question{
		ID:         id,
		Statement:  "statement " + id,
		Choices:    []model.Choice{{ID: "A", Text: "x"}, {ID: "B", Text: "y"}},
		Answer:     model.Answer{CorrectIDs: []string{"A"}},
		Difficulty: difficulty,
		Topic:      model.Tags(topics),
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
}

func TestQuestionCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	insertTestQuestion(t, s, "q2", model.DifficultyEasy, "sets")
	insertTestQuestion(t, s, "q1", model.DifficultyHard, "graphs")
	insertTestQuestion(t, s, "q3", model.DifficultyEasy, "graphs")

	q, err := s.GetQuestion("q1")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q == nil || q.Statement != "statement q1" || q.Key() != "A" {
		t.Errorf("GetQuestion(q1) = %+v", q)
	}

	missing, err := s.GetQuestion("nope")
	if err != nil || missing != nil {
		t.Errorf("GetQuestion(nope) = %+v, %v; want nil, nil", missing, err)
	}

	// Upsert replaces rather than duplicates.
	insertTestQuestion(t, s, "q1", model.DifficultyMedium, "graphs")
	count, _ = s.QuestionCount()
	if count != 3 {
		t.Errorf("QuestionCount after upsert = %d, want 3", count)
	}
	q, _ = s.GetQuestion("q1")
	if q.Difficulty != model.DifficultyMedium {
		t.Errorf("difficulty after upsert = %q, want medium", q.Difficulty)
	}
}

func TestUpsertQuestionDropsValidation(t *testing.T) {
	s := newTestStore(t)
	q := model.Question{
		ID:         "v1",
		Statement:  "s",
		Choices:    []model.Choice{{ID: "A", Text: "x"}, {ID: "B", Text: "y"}},
		Answer:     model.Answer{CorrectIDs: []string{"A"}},
		Validation: &model.ValidationAudit{ValidatedBy: "m"},
	}
	if err := s.UpsertQuestion(q); err != nil {
		t.Fatalf("UpsertQuestion: %v", err)
	}
	got, _ := s.GetQuestion("v1")
	if got.Validation != nil {
		t.Error("stored question kept transient validation")
	}
	if q.Validation == nil {
		t.Error("caller's question was mutated")
	}
}

func TestFirstAndSampleQuestions(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"c", "a", "d", "b"} {
		insertTestQuestion(t, s, id, model.DifficultyEasy, "t")
	}

	first, err := s.FirstQuestions(3)
	if err != nil {
		t.Fatalf("FirstQuestions: %v", err)
	}
	var ids []string
	for _, q := range first {
		ids = append(ids, q.ID)
	}
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("FirstQuestions ids = %v, want [a b c]", ids)
	}

	sample, err := s.SampleQuestions(10)
	if err != nil {
		t.Fatalf("SampleQuestions: %v", err)
	}
	if len(sample) != 4 {
		t.Errorf("SampleQuestions(10) returned %d, want 4", len(sample))
	}
	seen := map[string]bool{}
	for _, q := range sample {
		if seen[q.ID] {
			t.Errorf("duplicate %s in sample", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestListQuestionsFiltered(t *testing.T) {
	s := newTestStore(t)
	insertTestQuestion(t, s, "q1", model.DifficultyEasy, "sets")
	insertTestQuestion(t, s, "q2", model.DifficultyHard, "sets")
	insertTestQuestion(t, s, "q3", model.DifficultyEasy, "graphs")
	insertTestQuestion(t, s, "q4", model.DifficultyHard, "geometry", "Sets")
	insertTestQuestion(t, s, "q5", model.DifficultyMedium)

	tests := []struct {
		name       string
		difficulty string
		topic      string
		want       int
	}{
		{"no filter", "", "", 5},
		{"difficulty", "easy", "", 2},
		{"capitalised difficulty", "Hard", "", 2},
		{"topic any tag", "", "sets", 3},
		{"topic second tag", "", "geometry", 1},
		{"both", "easy", "sets", 1},
		{"untagged excluded", "medium", "sets", 0},
		{"none match", "", "calculus", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListQuestionsFiltered(tt.difficulty, tt.topic)
			if err != nil {
				t.Fatalf("ListQuestionsFiltered: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListQuestionsFiltered() = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func testRun(id, at string, acc float64) model.RunRecord {
	return model.RunRecord{
		RunID:           id,
		EvaluatedAt:     at,
		Mode:            model.ModeStore,
		Sampler:         model.SamplerRandom,
		BatchSize:       5,
		ValidationModel: "v",
		StudentModels:   []string{"m"},
		Metadata:        model.RunMetadata{SchemaVersion: model.SchemaVersion},
		Questions:       []model.QuestionBlock{},
		Summary:         model.RunSummary{OverallAccuracy: acc},
	}
}

func TestUpsertRunIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertRun(testRun("run_1", "2025-01-01T00:00:00Z", 0.25)); err != nil {
		t.Fatalf("UpsertRun: %v", err)
	}
	if err := s.UpsertRun(testRun("run_1", "2025-01-01T00:00:00Z", 0.75)); err != nil {
		t.Fatalf("UpsertRun: %v", err)
	}

	n, err := s.RunCount()
	if err != nil {
		t.Fatalf("RunCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("RunCount = %d, want 1", n)
	}
	r, err := s.GetRun("run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Summary.OverallAccuracy != 0.75 {
		t.Errorf("accuracy = %v, want 0.75 (last write wins)", r.Summary.OverallAccuracy)
	}

	missing, err := s.GetRun("run_x")
	if err != nil || missing != nil {
		t.Errorf("GetRun(run_x) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestListRunsAndLatest(t *testing.T) {
	s := newTestStore(t)

	latest, err := s.LatestRun()
	if err != nil || latest != nil {
		t.Fatalf("LatestRun on empty = %+v, %v", latest, err)
	}

	s.UpsertRun(testRun("run_a", "2025-01-01T00:00:00Z", 0))
	s.UpsertRun(testRun("run_b", "2025-02-01T00:00:00Z", 0))

	runs, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run_b" {
		t.Errorf("ListRuns order = %v", runs)
	}
	latest, _ = s.LatestRun()
	if latest == nil || latest.RunID != "run_b" {
		t.Errorf("LatestRun = %+v, want run_b", latest)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	h, err := s.GetImportedFileHash("a.json")
	if err != nil || h != "" {
		t.Fatalf("GetImportedFileHash(new) = %q, %v", h, err)
	}
	if err := s.SetImportedFileHash("a.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash("a.json", "def"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	h, _ = s.GetImportedFileHash("a.json")
	if h != "def" {
		t.Errorf("hash = %q, want def", h)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)
	if v, err := s.GetMetadata("last_import"); err != nil || v != "" {
		t.Fatalf("GetMetadata(missing) = %q, %v", v, err)
	}
	s.SetMetadata("last_import", "2025-01-01T00:00:00Z")
	if v, _ := s.GetMetadata("last_import"); v != "2025-01-01T00:00:00Z" {
		t.Errorf("GetMetadata = %q", v)
	}
}
