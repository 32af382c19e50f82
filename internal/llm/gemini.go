package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider calls Google Gemini models through the generative AI SDK.
type GeminiProvider struct {
	client      *genai.Client
	temperature float32
}

// NewGeminiProvider creates a Gemini client authenticated with apiKey.
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, temperature: defaultTemperature}, nil
}

// Complete implements Provider.
func (p *GeminiProvider) Complete(ctx context.Context, model, prompt string, img *Image) (string, error) {
	m := p.client.GenerativeModel(model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(p.temperature),
	}

	parts := []genai.Part{genai.Text(prompt)}
	if img != nil {
		parts = append(parts, genai.Blob{MIMEType: img.MediaType, Data: img.Data})
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusTooManyRequests {
			return "", &RateLimitError{Err: err}
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("generate content: %w", errEmptyResponse)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}

// Close implements Provider.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
