package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(content, finish string) string {
	choice := map[string]any{"index": 0, "delta": map[string]any{"content": content}}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	b, _ := json.Marshal(map[string]any{
		"id": "chatcmpl-1", "object": "chat.completion.chunk", "created": 1,
		"model": "gpt-3.5-turbo", "choices": []any{choice},
	})
	return "data: " + string(b) + "\n\n"
}

// sseServer answers rateLimited 429s first and then streams deltas. The
// decoded request body is stored in got.
func sseServer(t *testing.T, rateLimited int32, deltas []string, got *map[string]any) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= rateLimited {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
			return
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, d := range deltas {
			finish := ""
			if i == len(deltas)-1 {
				finish = "stop"
			}
			_, _ = io.WriteString(w, chunk(d, finish))
			w.(http.Flusher).Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *OpenAICompatClient {
	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "sk-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.backoff = time.Millisecond
	return c
}

func TestChatCompletionStream(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, 0, []string{"Think ", "about ", "loops."}, &body)
	c := newTestClient(srv)

	var deltas []string
	resp, err := c.ChatCompletionStream(context.Background(),
		[]Message{SystemMessage("be brief"), UserMessage("hi"), AssistantMessage("hello")},
		func(d string) error { deltas = append(deltas, d); return nil },
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"Think ", "about ", "loops."}, deltas)
	assert.Equal(t, "Think about loops.", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)

	assert.Equal(t, "gpt-3.5-turbo", body["model"])
	assert.Equal(t, 0.4, body["temperature"])
	assert.Equal(t, float64(500), body["max_tokens"])
	assert.Equal(t, float64(1), body["n"])
	assert.Equal(t, true, body["stream"])
	msgs, _ := body["messages"].([]any)
	require.Len(t, msgs, 3)
	for i, role := range []string{"system", "user", "assistant"} {
		assert.Equal(t, role, msgs[i].(map[string]any)["role"])
	}
}

func TestChatCompletionStream_RetriesRateLimit(t *testing.T) {
	srv := sseServer(t, 2, []string{"ok"}, nil)

	resp, err := newTestClient(srv).ChatCompletionStream(context.Background(), []Message{UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
}

func TestChatCompletionStream_GivesUp(t *testing.T) {
	srv := sseServer(t, 10, []string{"never"}, nil)

	_, err := newTestClient(srv).ChatCompletionStream(context.Background(), []Message{UserMessage("hi")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.True(t, isRateLimited(err), "the SDK error carries the status code")
}

func TestChatCompletionStream_DoesNotRetryOtherErrorsMentioning429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"prompt mentions error 429","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestClient(srv).ChatCompletionStream(context.Background(), []Message{UserMessage("what is 429?")}, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"text only", errors.New("upstream said 429 Too Many Requests"), false},
		{"wrapped text", fmt.Errorf("proxy: %w", errors.New("HTTP 429")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRateLimited(tt.err))
		})
	}
}

func TestChatCompletionStream_HandlerStops(t *testing.T) {
	srv := sseServer(t, 0, []string{"a", "b", "c"}, nil)
	stop := errors.New("client went away")

	n := 0
	_, err := newTestClient(srv).ChatCompletionStream(context.Background(), []Message{UserMessage("hi")},
		func(d string) error {
			n++
			if n == 2 {
				return stop
			}
			return nil
		})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, n, fmt.Sprintf("handler called %d times", n))
}
