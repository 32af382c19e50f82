// Package config loads the model roster: which providers exist, which
// model validates and which models answer.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mathlabs/evaluator/internal/llm"
)

// ProviderType selects the client used for a provider.
type ProviderType string

const (
	// ProviderOpenAI is any OpenAI-compatible chat completions endpoint.
	ProviderOpenAI ProviderType = "openai"
	// ProviderGemini is the Google Gemini API.
	ProviderGemini ProviderType = "gemini"
)

// Provider describes one API endpoint and its credentials.
type Provider struct {
	Type    ProviderType `yaml:"type"`
	BaseURL string       `yaml:"base_url"`
	APIKey  string       `yaml:"api_key"`
}

// Target is a model served by a named provider.
type Target struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Roster is the model roster file.
type Roster struct {
	Providers map[string]Provider `yaml:"providers"`
	Validator Target              `yaml:"validator"`
	Students  []Target            `yaml:"students"`
}

// LoadRoster reads a roster from a YAML file. Environment references such as
// ${OPENROUTER_API_KEY} in base URLs and keys are expanded.
func LoadRoster(path string) (*Roster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()

	var r Roster
	if err := yaml.NewDecoder(file).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	for name, p := range r.Providers {
		p.APIKey = os.ExpandEnv(p.APIKey)
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		if p.Type == "" {
			p.Type = ProviderOpenAI
		}
		r.Providers[name] = p
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks that every target names a known provider and that no
// model id is routed to two providers.
func (r *Roster) Validate() error {
	var errs []error
	for name, p := range r.Providers {
		if p.Type != ProviderOpenAI && p.Type != ProviderGemini {
			errs = append(errs, fmt.Errorf("provider %s: unknown type %q", name, p.Type))
		}
	}
	if r.Validator.Model == "" {
		errs = append(errs, errors.New("validator model is required"))
	}
	if len(r.Students) == 0 {
		errs = append(errs, errors.New("at least one student is required"))
	}

	routes := make(map[string]string)
	for _, t := range append([]Target{r.Validator}, r.Students...) {
		if t.Model == "" {
			continue
		}
		if _, ok := r.Providers[t.Provider]; !ok {
			errs = append(errs, fmt.Errorf("model %s: unknown provider %q", t.Model, t.Provider))
			continue
		}
		if prev, ok := routes[t.Model]; ok && prev != t.Provider {
			errs = append(errs, fmt.Errorf("model %s routed to both %s and %s", t.Model, prev, t.Provider))
		}
		routes[t.Model] = t.Provider
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid roster: %w", err)
	}
	return nil
}

// StudentModels returns the student model ids in roster order.
func (r *Roster) StudentModels() []string {
	out := make([]string, len(r.Students))
	for i, t := range r.Students {
		out[i] = t.Model
	}
	return out
}

// BuildCaller creates one client per provider in use and routes every
// roster model to its client.
func (r *Roster) BuildCaller(ctx context.Context, timeout time.Duration) (*llm.Caller, error) {
	caller := llm.NewCaller(timeout)
	clients := make(map[string]llm.Provider)
	for _, t := range append([]Target{r.Validator}, r.Students...) {
		p, ok := clients[t.Provider]
		if !ok {
			var err error
			p, err = newProvider(ctx, r.Providers[t.Provider])
			if err != nil {
				caller.Close()
				return nil, fmt.Errorf("provider %s: %w", t.Provider, err)
			}
			clients[t.Provider] = p
		}
		caller.Register(t.Model, p)
	}
	return caller, nil
}

func newProvider(ctx context.Context, p Provider) (llm.Provider, error) {
	switch p.Type {
	case ProviderGemini:
		return llm.NewGeminiProvider(ctx, p.APIKey)
	case ProviderOpenAI:
		return llm.NewOpenAIProvider(p.BaseURL, p.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q", p.Type)
	}
}
