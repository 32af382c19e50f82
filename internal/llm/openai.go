package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.1
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint,
// such as OpenRouter or the Hugging Face router.
type OpenAIProvider struct {
	api         *openai.Client
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a provider. An empty baseURL uses the OpenAI API.
func NewOpenAIProvider(baseURL, apiKey string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{
		api:         openai.NewClientWithConfig(config),
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
}

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, model, prompt string, img *Image) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if img != nil {
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURL(),
				Detail: openai.ImageURLDetailAuto,
			}},
		}
	} else {
		msg.Content = prompt
	}

	resp, err := p.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    []openai.ChatCompletionMessage{msg},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			slog.Warn("rate limited", "model", model)
			return "", &RateLimitError{Err: err}
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: %w", errEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// Close implements Provider. The HTTP client needs no teardown.
func (p *OpenAIProvider) Close() error { return nil }
