// Package chat provides the LLM completion provider used by the claim
// extraction, disinformation analysis, and related-news stages.
//
// Defines a Provider interface with an OpenAI-compatible implementation
// (works against any /chat/completions endpoint, including Gemini's OpenAI
// compatibility layer) and a noop provider for unconfigured deployments.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider produces one completion for one prompt.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// OpenAIProvider calls an OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// Option configures an OpenAIProvider.
type Option func(*OpenAIProvider)

// WithBaseURL overrides the API base URL (no trailing slash).
func WithBaseURL(u string) Option {
	return func(p *OpenAIProvider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *OpenAIProvider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *OpenAIProvider) { p.temperature = t }
}

// NewOpenAIProvider creates a provider for the given model.
func NewOpenAIProvider(apiKey, model string, opts ...Option) *OpenAIProvider {
	p := &OpenAIProvider{
		baseURL:     "https://api.openai.com/v1",
		apiKey:      apiKey,
		model:       model,
		temperature: 0.2,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the prompt as a single user message and returns the first
// choice's content.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: p.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("chat: read response: %w", err)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("chat: unmarshal response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("chat: api error: %s: %s", result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat: unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat: empty choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

// NoopProvider returns empty completions. Used when no API key is
// configured; stages treat the empty answer as "model unavailable" and fall
// back to their non-LLM behavior.
type NoopProvider struct{}

// Complete returns an empty completion.
func (NoopProvider) Complete(_ context.Context, _ string) (string, error) {
	return "", nil
}
