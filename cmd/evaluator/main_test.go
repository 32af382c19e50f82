package main

import (
	"testing"

	"github.com/mathlabs/evaluator/internal/model"
)

func TestPickRun(t *testing.T) {
	runs := []model.RunRecord{
		{RunID: "run_20250101_000000", EvaluatedAt: "2025-01-01T00:00:05Z"},
		{RunID: "run_20250103_000000", EvaluatedAt: "2025-01-03T00:00:05Z"},
		{RunID: "run_20250102_000000", EvaluatedAt: "2025-01-02T00:00:05Z"},
	}

	tests := []struct {
		name    string
		runs    []model.RunRecord
		id      string
		want    string
		wantErr bool
	}{
		{"latest", runs, "", "run_20250103_000000", false},
		{"by id", runs, "run_20250101_000000", "run_20250101_000000", false},
		{"unknown id", runs, "run_x", "", true},
		{"no runs", nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickRun(tt.runs, tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("pickRun error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.RunID != tt.want {
				t.Errorf("pickRun = %q, want %q", got.RunID, tt.want)
			}
		})
	}
}

func TestRootDefaultsToRun(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"mode", "sampler", "batch-size", "roster"} {
		if root.Flags().Lookup(name) == nil {
			t.Errorf("root is missing run flag %q", name)
		}
	}
	for _, sub := range []string{"run", "import", "export", "report", "serve"} {
		if c, _, err := root.Find([]string{sub}); err != nil || c.Name() != sub {
			t.Errorf("subcommand %q not registered", sub)
		}
	}
}
