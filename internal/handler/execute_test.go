package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/executor"
	"github.com/sakif/codebuddy/internal/handler"
	"github.com/sakif/codebuddy/internal/service"
)

// MockExecutor implements a fast executor for handler testing without Docker overhead.
type MockExecutor struct {
	CapturedReq executor.ExecutionRequest
	ReturnRes   *executor.ExecutionResult
	ReturnErr   error
}

func (m *MockExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	m.CapturedReq = req
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnRes, nil
}

type executionCounts map[string]int

func (c executionCounts) ObserveExecution(language, status string) { c[language+"/"+status]++ }

func TestExecuteHandler_HandleExecute(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	post := func(h *handler.ExecuteHandler, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/execute", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)
		return rr
	}

	t.Run("valid execution", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: &executor.ExecutionResult{
				Stdout:   "Hello World\n",
				ExitCode: 0,
				Status:   "Accepted",
				Duration: 100 * time.Millisecond,
			},
		}
		counts := executionCounts{}
		h := handler.NewExecuteHandler(mockExec, counts, logger)

		rr := post(h, `{"language":"py","code":"print('Hello World')"}`)
		assert.Equal(t, http.StatusOK, rr.Code)

		var res executor.ExecutionResult
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "Hello World\n", res.Stdout)
		assert.Equal(t, 0, res.ExitCode)

		assert.Equal(t, "print('Hello World')", mockExec.CapturedReq.Code)
		assert.Equal(t, 1, counts["python/Accepted"])
	})

	t.Run("timed out", func(t *testing.T) {
		counts := executionCounts{}
		h := handler.NewExecuteHandler(&MockExecutor{ReturnRes: &executor.ExecutionResult{TimedOut: true, ExitCode: 124}}, counts, logger)

		rr := post(h, `{"code":"while(true){}"}`)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 1, counts["javascript/timed_out"])
	})

	t.Run("invalid request body", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockExecutor{}, nil, logger)

		rr := post(h, `{"invalid_json":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty code", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockExecutor{}, nil, logger)

		rr := post(h, `{"code":""}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "code cannot be empty")
	})

	t.Run("code too long", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockExecutor{}, nil, logger)

		body, _ := json.Marshal(map[string]string{"code": strings.Repeat("x", service.MaxCodeLength+1)})
		rr := post(h, string(body))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unsupported language", func(t *testing.T) {
		counts := executionCounts{}
		mockExec := &MockExecutor{ReturnErr: apperror.ValidationFailed("language", `language "cobol" is not supported`)}
		h := handler.NewExecuteHandler(mockExec, counts, logger)

		rr := post(h, `{"language":"cobol","code":"DISPLAY 'HI'."}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "not supported")
		assert.Equal(t, 1, counts["cobol/error"])
	})

	t.Run("executor failure", func(t *testing.T) {
		h := handler.NewExecuteHandler(&MockExecutor{ReturnErr: context.DeadlineExceeded}, nil, logger)

		rr := post(h, `{"code":"1"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.NotContains(t, rr.Body.String(), "deadline")
	})
}
