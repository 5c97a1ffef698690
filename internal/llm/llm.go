// Package llm wraps the Gemini client behind a small text-in/text-out
// interface. Rate limiting lives here so every caller shares one budget.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/sheetsage/sheetsage/internal/config"
)

// ErrEmptyResponse indicates the model returned no usable candidates.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Generator produces model completions. The query pipeline depends on this
// interface, never on the concrete client, so tests substitute a fake.
type Generator interface {
	// Generate returns the full completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream invokes onToken for each text fragment as it arrives
	// and returns the concatenated completion. A non-nil error from onToken
	// aborts the stream.
	GenerateStream(ctx context.Context, prompt string, onToken func(token string) error) (string, error)
}

// Client is the Gemini-backed Generator. The API key is read from
// GEMINI_API_KEY by the underlying client.
type Client struct {
	cli         *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// New creates a Client from cfg. The rate limiter admits cfg.ModelRPM
// requests per minute with a burst of one; callers block in Wait rather
// than receiving 429s from the API.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cli:         cli,
		model:       cfg.ModelName,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
		limiter:     rate.NewLimiter(rate.Limit(cfg.ModelRPM)/60, 1),
		logger:      logger,
	}, nil
}

func (c *Client) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: c.maxTokens,
	}
}

func contents(prompt string) []*genai.Content {
	return []*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}}
}

// Generate returns the full completion for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.cli.Models.GenerateContent(ctx, c.model, contents(prompt), c.generateConfig())
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// GenerateStream streams the completion token by token.
func (c *Client) GenerateStream(ctx context.Context, prompt string, onToken func(token string) error) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	var full []byte
	for resp, err := range c.cli.Models.GenerateContentStream(ctx, c.model, contents(prompt), c.generateConfig()) {
		if err != nil {
			return "", fmt.Errorf("stream content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			full = append(full, part.Text...)
			if err := onToken(part.Text); err != nil {
				return "", err
			}
		}
	}

	if len(full) == 0 {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("stream complete", "model", c.model, "chars", len(full))
	return string(full), nil
}
