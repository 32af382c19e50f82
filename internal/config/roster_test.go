package config

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

const rosterYAML = `
providers:
  openrouter:
    type: openai
    base_url: https://openrouter.ai/api/v1
    api_key: ${TEST_OPENROUTER_KEY}
  hf:
    base_url: https://router.huggingface.co/v1
    api_key: ${TEST_HF_TOKEN}
validator:
  provider: openrouter
  model: google/gemini-2.0-flash-exp:free
students:
  - provider: openrouter
    model: mistralai/mistral-small-3.1-24b-instruct:free
  - provider: hf
    model: google/gemma-3-27b-it:nebius
`

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestLoadRoster(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "or-secret")
	t.Setenv("TEST_HF_TOKEN", "hf-secret")

	r, err := LoadRoster(writeRoster(t, rosterYAML))
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	if got := r.Providers["openrouter"].APIKey; got != "or-secret" {
		t.Errorf("openrouter key = %q, want expanded secret", got)
	}
	if got := r.Providers["hf"].Type; got != ProviderOpenAI {
		t.Errorf("hf type = %q, want default openai", got)
	}
	want := []string{"mistralai/mistral-small-3.1-24b-instruct:free", "google/gemma-3-27b-it:nebius"}
	got := r.StudentModels()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("StudentModels() = %v, want %v", got, want)
	}
}

func TestLoadRosterInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown provider", `
providers: {a: {type: openai}}
validator: {provider: a, model: v}
students: [{provider: b, model: s}]
`, `unknown provider "b"`},
		{"no students", `
providers: {a: {type: openai}}
validator: {provider: a, model: v}
`, "at least one student"},
		{"bad type", `
providers: {a: {type: cohere}}
validator: {provider: a, model: v}
students: [{provider: a, model: s}]
`, "unknown type"},
		{"model on two providers", `
providers: {a: {type: openai}, b: {type: openai}}
validator: {provider: a, model: v}
students: [{provider: a, model: s}, {provider: b, model: s}]
`, "routed to both"},
		{"not yaml", "providers: [", "decode roster"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRoster(writeRoster(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadRoster() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRosterMissingFile(t *testing.T) {
	if _, err := LoadRoster(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("LoadRoster(missing) succeeded")
	}
}

func TestBuildCaller(t *testing.T) {
	r, err := LoadRoster(writeRoster(t, rosterYAML))
	if err != nil {
		t.Fatalf("LoadRoster: %v", err)
	}
	caller, err := r.BuildCaller(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("BuildCaller: %v", err)
	}
	defer caller.Close()

	models := caller.Models()
	sort.Strings(models)
	want := []string{
		"google/gemini-2.0-flash-exp:free",
		"google/gemma-3-27b-it:nebius",
		"mistralai/mistral-small-3.1-24b-instruct:free",
	}
	if strings.Join(models, ",") != strings.Join(want, ",") {
		t.Errorf("Models() = %v, want %v", models, want)
	}
}
