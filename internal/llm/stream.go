package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// ChatCompletionStream sends a streaming chat completion request.
// The handler is called with each text delta as it arrives.
// Returns the full response once streaming is complete.
func (c *OpenAICompatClient) ChatCompletionStream(ctx context.Context, messages []Message, handler StreamHandler) (*Response, error) {
	params := c.params(messages)

	var stream *ssestream.Stream[openai.ChatCompletionChunk]
	for attempt := range c.config.MaxAttempts {
		stream = c.client.Chat.Completions.NewStreaming(ctx, params)
		err := stream.Err()
		if err == nil {
			break
		}
		stream.Close()
		if !isRateLimited(err) || attempt == c.config.MaxAttempts-1 {
			return nil, fmt.Errorf("llm: chat completion stream: %w", err)
		}
		wait := c.backoff << attempt
		c.logger.Warn("llm rate limited, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("llm: chat completion stream: %w", ctx.Err())
		}
	}
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && handler != nil {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if err := handler(delta); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("llm: streaming: %w", err)
	}
	if len(acc.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices returned")
	}

	choice := acc.Choices[0]
	return &Response{
		Message:      AssistantMessage(choice.Message.Content),
		FinishReason: choice.FinishReason,
	}, nil
}
