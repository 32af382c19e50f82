package extract

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mathlabs/evaluator/internal/model"
)

var (
	// ErrNoArray is returned when a response contains no JSON array of objects.
	ErrNoArray = errors.New("no JSON array of objects found")
	// ErrCountMismatch is returned when the number of corrections differs
	// from the number of questions asked about.
	ErrCountMismatch = errors.New("correction count does not match batch size")
	// ErrSchema is returned when the array does not match the correction schema.
	ErrSchema = errors.New("corrections do not match schema")
)

//go:embed corrections.schema.json
var correctionsSchema string

// CorrectionParser turns a validator response into one correction per
// question, in the order the questions were presented.
type CorrectionParser interface {
	ParseCorrections(text string) ([]model.ValidationCorrection, error)
}

// TolerantParser accepts responses that wrap the JSON array in prose or
// markdown fences.
type TolerantParser struct {
	schema *jsonschema.Schema
}

// NewTolerantParser compiles the embedded correction schema.
func NewTolerantParser() (*TolerantParser, error) {
	s, err := jsonschema.CompileString("corrections.schema.json", correctionsSchema)
	if err != nil {
		return nil, fmt.Errorf("compile corrections schema: %w", err)
	}
	return &TolerantParser{schema: s}, nil
}

type rawCorrection struct {
	FinalAnswer string   `json:"final_answer"`
	Difficulty  string   `json:"difficulty"`
	Shuffle     bool     `json:"shuffle"`
	Issues      []string `json:"issues"`
}

// ParseCorrections implements CorrectionParser.
func (p *TolerantParser) ParseCorrections(text string) ([]model.ValidationCorrection, error) {
	span, ok := FindArray(text)
	if !ok {
		return nil, ErrNoArray
	}

	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode corrections: %w", err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	var raw []rawCorrection
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, fmt.Errorf("decode corrections: %w", err)
	}
	out := make([]model.ValidationCorrection, len(raw))
	for i, r := range raw {
		issues := r.Issues
		if issues == nil {
			issues = []string{}
		}
		out[i] = model.ValidationCorrection{
			FinalAnswer: strings.ToUpper(strings.TrimSpace(r.FinalAnswer)),
			Difficulty:  model.ParseDifficulty(r.Difficulty),
			Shuffle:     r.Shuffle,
			Issues:      issues,
		}
	}
	return out, nil
}

// FindArray returns the first balanced JSON array whose first element is an
// object. Brackets inside string literals are ignored.
func FindArray(text string) (string, bool) {
	for start := strings.IndexByte(text, '['); start >= 0; {
		rest := strings.TrimLeft(text[start+1:], " \t\r\n")
		if len(rest) > 0 && rest[0] == '{' {
			if end, ok := matchBracket(text, start); ok {
				return text[start : end+1], true
			}
		}
		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBracket returns the index of the bracket that closes text[start].
func matchBracket(text string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
