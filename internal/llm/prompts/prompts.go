package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"

	"github.com/mathlabs/evaluator/internal/model"
)

//go:embed templates/*.txt
var embedded embed.FS

var (
	loadOnce         sync.Once
	loadErr          error
	validateTemplate *template.Template
	studentTemplate  *template.Template
)

// ValidationItem is one question as presented to the validator.
type ValidationItem struct {
	ID                string
	Statement         string
	Choices           []model.Choice
	ClaimedAnswer     string
	ClaimedDifficulty model.Difficulty
}

// ValidationData holds template data for batched validation prompts.
type ValidationData struct {
	Letters   string
	Questions []ValidationItem
}

// StudentData holds template data for student prompts.
type StudentData struct {
	Statement string
	Choices   []model.Choice
}

// Load parses prompt templates from fsys. Pass nil to use the embedded set.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		if fsys == nil {
			fsys = embedded
		}
		validateTemplate, loadErr = parse(fsys, "templates/validate.txt")
		if loadErr != nil {
			return
		}
		studentTemplate, loadErr = parse(fsys, "templates/student.txt")
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	return tmpl, nil
}

// BuildValidationPrompt renders one prompt covering every question in batch,
// numbered from zero in batch order.
func BuildValidationPrompt(batch []model.Question, alphabet string) (string, error) {
	if err := Load(nil); err != nil {
		return "", err
	}
	if validateTemplate == nil {
		return "", errors.New("templates not initialized")
	}

	data := ValidationData{Letters: strings.Join(strings.Split(alphabet, ""), "/")}
	for _, q := range batch {
		diff := q.Difficulty
		if diff == "" {
			diff = model.DifficultyUnknown
		}
		data.Questions = append(data.Questions, ValidationItem{
			ID:                q.ID,
			Statement:         q.Statement,
			Choices:           q.Choices,
			ClaimedAnswer:     q.Key(),
			ClaimedDifficulty: diff,
		})
	}

	var buf bytes.Buffer
	if err := validateTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildStudentPrompt renders the prompt sent to every roster member.
func BuildStudentPrompt(q model.Question) (string, error) {
	if err := Load(nil); err != nil {
		return "", err
	}
	if studentTemplate == nil {
		return "", errors.New("templates not initialized")
	}

	var buf bytes.Buffer
	if err := studentTemplate.Execute(&buf, StudentData{Statement: q.Statement, Choices: q.Choices}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
