package extract

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mathlabs/evaluator/internal/model"
)

func TestAnswer(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"marker", "ANSWER: C\nREASONING: because", "C", false},
		{"lowercase marker", "answer: b", "B", false},
		{"marker wins over earlier letter", "A is tempting. ANSWER: D", "D", false},
		{"fallback isolated letter", "I pick B since 2+2=4", "B", false},
		{"fallback alphabet order", "Either C or A", "A", false},
		{"letter inside word ignored", "Because no clear choice", "", true},
		{"outside alphabet", "ANSWER: E", "", true},
		{"empty", "", "", true},
		{"fallback only first 120", strings.Repeat("x", 130) + " B", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Answer(tt.text, DefaultAlphabet)
			if tt.wantErr {
				if !errors.Is(err, ErrNoAnswer) {
					t.Fatalf("Answer() error = %v, want ErrNoAnswer", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Answer(): %v", err)
			}
			if got != tt.want {
				t.Errorf("Answer() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAnswerCustomAlphabet(t *testing.T) {
	got, err := Answer("ANSWER: E", "ABCDE")
	if err != nil || got != "E" {
		t.Errorf("Answer() = %q, %v; want E", got, err)
	}
}

func TestReasoning(t *testing.T) {
	if got := Reasoning("ANSWER: A\nREASONING:  it is obvious \n"); got != "it is obvious" {
		t.Errorf("Reasoning() = %q", got)
	}
	if got := Reasoning("  no marker here "); got != "no marker here" {
		t.Errorf("Reasoning() = %q", got)
	}
	long := "REASONING: " + strings.Repeat("é", 600)
	if got := Reasoning(long); len([]rune(got)) != 500 {
		t.Errorf("Reasoning() length = %d, want 500", len([]rune(got)))
	}
}

func TestFindArray(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"bare", `[{"a":1}]`, `[{"a":1}]`, true},
		{"fenced", "```json\n[ {\"a\":1}, {\"b\":2} ]\n```", `[ {"a":1}, {"b":2} ]`, true},
		{"skips non-object array", `see [1,2] then [{"a":"]"}] ok`, `[{"a":"]"}]`, true},
		{"escaped quote", `[{"a":"say \"]\""}]`, `[{"a":"say \"]\""}]`, true},
		{"unbalanced", `[{"a":1}`, "", false},
		{"none", "no json", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindArray(tt.text)
			if ok != tt.ok || got != tt.want {
				t.Errorf("FindArray() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func newParser(t *testing.T) *TolerantParser {
	t.Helper()
	p, err := NewTolerantParser()
	if err != nil {
		t.Fatalf("NewTolerantParser: %v", err)
	}
	return p
}

func TestParseCorrections(t *testing.T) {
	p := newParser(t)
	text := "Here you go:\n```json\n" +
		`[{"final_answer":"b","difficulty":"Hard","shuffle":true,"issues":["typo"]},` +
		`{"final_answer":"A","difficulty":"trivial"}]` + "\n```"

	got, err := p.ParseCorrections(text)
	if err != nil {
		t.Fatalf("ParseCorrections: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].FinalAnswer != "B" || got[0].Difficulty != model.DifficultyHard || !got[0].Shuffle {
		t.Errorf("got[0] = %+v", got[0])
	}
	if len(got[0].Issues) != 1 || got[0].Issues[0] != "typo" {
		t.Errorf("got[0].Issues = %v", got[0].Issues)
	}
	if got[1].Difficulty != model.DifficultyUnknown || got[1].Shuffle || got[1].Issues == nil {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestParseCorrectionsErrors(t *testing.T) {
	p := newParser(t)
	tests := []struct {
		name string
		text string
		want error
	}{
		{"no array", "I cannot help", ErrNoArray},
		{"missing difficulty", `[{"final_answer":"A"}]`, ErrSchema},
		{"multi-letter answer", `[{"final_answer":"AB","difficulty":"easy"}]`, ErrSchema},
		{"shuffle not bool", `[{"final_answer":"A","difficulty":"easy","shuffle":"yes"}]`, ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.ParseCorrections(tt.text)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseCorrections() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnswerPatternsCompiledOnce(t *testing.T) {
	first := patternsFor("ABCDE")
	if again := patternsFor("ABCDE"); again != first {
		t.Error("patterns recompiled for the same alphabet")
	}
	if other := patternsFor("ABC"); other == first {
		t.Error("different alphabets share patterns")
	}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := Answer("I pick E here", "ABCDE"); err != nil || got != "E" {
				t.Errorf("Answer = %q, %v; want E", got, err)
			}
		}()
	}
	wg.Wait()
}
