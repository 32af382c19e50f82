// Package extract pulls structured values out of free-form model output.
package extract

import (
	"errors"
	"regexp"
	"strings"
	"sync"
)

// DefaultAlphabet is the set of choice letters used when none is configured.
const DefaultAlphabet = "ABCD"

const (
	fallbackWindow  = 120
	maxReasoningLen = 500
)

// ErrNoAnswer is returned when no choice letter can be found in a response.
var ErrNoAnswer = errors.New("no answer letter found")

var reasoningRe = regexp.MustCompile(`(?is)REASONING:\s*(.+)`)

// answerPatterns are the compiled matchers for one alphabet.
type answerPatterns struct {
	marker  *regexp.Regexp
	letters []string
	tokens  []*regexp.Regexp
}

// patternCache maps an alphabet to its *answerPatterns.
var patternCache sync.Map

func patternsFor(alphabet string) *answerPatterns {
	if p, ok := patternCache.Load(alphabet); ok {
		return p.(*answerPatterns)
	}
	p := &answerPatterns{
		marker: regexp.MustCompile(`(?i)ANSWER:\s*([` + regexp.QuoteMeta(alphabet) + `])`),
	}
	for _, l := range alphabet {
		p.letters = append(p.letters, string(l))
		p.tokens = append(p.tokens, regexp.MustCompile(`\b`+regexp.QuoteMeta(string(l))+`\b`))
	}
	actual, _ := patternCache.LoadOrStore(alphabet, p)
	return actual.(*answerPatterns)
}

// Answer extracts the chosen letter from a student response. An explicit
// "ANSWER: X" marker wins. Otherwise the first 120 characters are scanned
// for an isolated letter, trying letters in alphabet order.
func Answer(text, alphabet string) (string, error) {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	p := patternsFor(alphabet)
	if m := p.marker.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1]), nil
	}

	head := text
	if r := []rune(text); len(r) > fallbackWindow {
		head = string(r[:fallbackWindow])
	}
	for i, token := range p.tokens {
		if token.MatchString(head) {
			return p.letters[i], nil
		}
	}
	return "", ErrNoAnswer
}

// Reasoning returns the text after a "REASONING:" marker, or the whole
// response when there is no marker, trimmed and capped at 500 runes.
func Reasoning(text string) string {
	out := text
	if m := reasoningRe.FindStringSubmatch(text); m != nil {
		out = m[1]
	}
	return Truncate(strings.TrimSpace(out), maxReasoningLen)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
