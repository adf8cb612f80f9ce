// Package llm talks to an OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// Client is the interface the chat service depends on.
type Client interface {
	ChatCompletionStream(ctx context.Context, messages []Message, handler StreamHandler) (*Response, error)
}

// Config selects the endpoint, model and sampling parameters.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int64
	// MaxAttempts bounds retries on HTTP 429.
	MaxAttempts int
}

// DefaultConfig is the tutor's historical setup: gpt-3.5-turbo, fairly
// focused sampling, short answers.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://api.openai.com/v1/",
		Model:       "gpt-3.5-turbo",
		Temperature: 0.4,
		TopP:        1,
		MaxTokens:   500,
		MaxAttempts: 3,
	}
}

// OpenAICompatClient works with any OpenAI-compatible API.
type OpenAICompatClient struct {
	client *openai.Client
	config Config
	logger *slog.Logger
	// backoff is the base wait before retrying a 429; doubled per attempt.
	backoff time.Duration
}

// NewClient creates a client. Zero fields in cfg fall back to DefaultConfig.
func NewClient(cfg Config, logger *slog.Logger) *OpenAICompatClient {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.TopP <= 0 {
		cfg.TopP = def.TopP
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	client := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled here so they can be logged and bounded.
		option.WithMaxRetries(0),
	)
	return &OpenAICompatClient{
		client:  &client,
		config:  cfg,
		logger:  logger,
		backoff: time.Second,
	}
}

func (c *OpenAICompatClient) params(messages []Message) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:            c.config.Model,
		Messages:         convertMessages(messages),
		Temperature:      param.NewOpt(c.config.Temperature),
		TopP:             param.NewOpt(c.config.TopP),
		MaxTokens:        param.NewOpt(c.config.MaxTokens),
		N:                param.NewOpt(int64(1)),
		FrequencyPenalty: param.NewOpt(0.0),
		PresencePenalty:  param.NewOpt(0.0),
	}
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}

// isRateLimited reports whether the API answered 429. Only the status code
// counts; a 429 inside a message or model reply does not.
func isRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
