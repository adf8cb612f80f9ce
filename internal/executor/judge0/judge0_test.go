package judge0_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/executor"
	"github.com/sakif/codebuddy/internal/executor/judge0"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

// fakeJudge0 answers "In Queue" for the first pendingPolls GETs and then
// returns final.
type fakeJudge0 struct {
	pendingPolls int32
	polls        atomic.Int32
	final        map[string]any
	submitted    map[string]any
	headers      http.Header
	submitStatus int
}

func (f *fakeJudge0) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /submissions", func(w http.ResponseWriter, r *http.Request) {
		f.headers = r.Header.Clone()
		assert.Equal(t, "true", r.URL.Query().Get("base64_encoded"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.submitted))
		if f.submitStatus != 0 {
			w.WriteHeader(f.submitStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	})
	mux.HandleFunc("GET /submissions/tok-1", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= f.pendingPolls {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": map[string]any{"id": 1, "description": "In Queue"}})
			return
		}
		_ = json.NewEncoder(w).Encode(f.final)
	})
	return mux
}

func newClient(t *testing.T, f *fakeJudge0, cfg judge0.Config) *judge0.Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Millisecond
	}
	return judge0.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExecute_PollsUntilDone(t *testing.T) {
	f := &fakeJudge0{
		pendingPolls: 2,
		final: map[string]any{
			"stdout":    b64("hello\n"),
			"status":    map[string]any{"id": 3, "description": "Accepted"},
			"time":      "0.012",
			"memory":    2048,
			"exit_code": 0,
		},
	}
	c := newClient(t, f, judge0.Config{APIKey: "secret", Host: "judge0.example"})

	res, err := c.Execute(context.Background(), executor.ExecutionRequest{Language: "py", Code: "print('hello')", Stdin: "x"})
	require.NoError(t, err)

	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "Accepted", res.Status)
	assert.Equal(t, int64(2048), res.MemoryKB)
	assert.Equal(t, 12*time.Millisecond, res.Duration)
	assert.False(t, res.TimedOut)
	assert.Equal(t, int32(3), f.polls.Load())

	assert.Equal(t, float64(71), f.submitted["language_id"])
	assert.Equal(t, b64("print('hello')"), f.submitted["source_code"])
	assert.Equal(t, b64("x"), f.submitted["stdin"])
	assert.Equal(t, "secret", f.headers.Get("X-RapidAPI-Key"))
	assert.Equal(t, "judge0.example", f.headers.Get("X-RapidAPI-Host"))
}

func TestExecute_CompileErrorAndTimeLimit(t *testing.T) {
	tests := []struct {
		name         string
		final        map[string]any
		wantTimedOut bool
		wantCompile  string
		wantStatus   string
	}{
		{
			name: "compilation error with wrapped base64",
			final: map[string]any{
				"compile_output": b64("main.c:1: error")[:8] + "\n" + b64("main.c:1: error")[8:],
				"status":         map[string]any{"id": 6, "description": "Compilation Error"},
			},
			wantCompile: "main.c:1: error",
			wantStatus:  "Compilation Error",
		},
		{
			name: "time limit exceeded",
			final: map[string]any{
				"status": map[string]any{"id": 5, "description": "Time Limit Exceeded"},
			},
			wantTimedOut: true,
			wantStatus:   "Time Limit Exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, &fakeJudge0{final: tt.final}, judge0.Config{})
			res, err := c.Execute(context.Background(), executor.ExecutionRequest{Language: "c", Code: "int main(){}"})
			require.NoError(t, err)
			assert.Equal(t, tt.wantTimedOut, res.TimedOut)
			assert.Equal(t, tt.wantCompile, res.CompileOutput)
			assert.Equal(t, tt.wantStatus, res.Status)
		})
	}
}

func TestExecute_UnsupportedLanguage(t *testing.T) {
	c := newClient(t, &fakeJudge0{}, judge0.Config{})

	_, err := c.Execute(context.Background(), executor.ExecutionRequest{Language: "cobol", Code: "x"})
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestExecute_SubmitRejected(t *testing.T) {
	c := newClient(t, &fakeJudge0{submitStatus: http.StatusUnauthorized}, judge0.Config{})

	_, err := c.Execute(context.Background(), executor.ExecutionRequest{Language: "js", Code: "1"})
	assert.ErrorContains(t, err, "status 401")
}

func TestExecute_GivesUpAfterMaxWait(t *testing.T) {
	f := &fakeJudge0{pendingPolls: 1 << 30}
	c := newClient(t, f, judge0.Config{MaxWait: 50 * time.Millisecond})

	_, err := c.Execute(context.Background(), executor.ExecutionRequest{Language: "js", Code: "while(1){}"})
	assert.ErrorContains(t, err, "still pending")
}
