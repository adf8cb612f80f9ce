package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/executor"
	"github.com/sakif/codebuddy/internal/service"
)

// ExecutionObserver is implemented by metrics.Collector.
type ExecutionObserver interface {
	ObserveExecution(language, status string)
}

// ExecuteHandler runs code for the editor's "Run" console.
type ExecuteHandler struct {
	exec     executor.Executor
	observer ExecutionObserver
	logger   *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler. observer may be nil.
func NewExecuteHandler(exec executor.Executor, observer ExecutionObserver, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:     exec,
		observer: observer,
		logger:   logger,
	}
}

// HandleExecute runs one program and returns its output.
//
// HTTP: POST /api/execute {"language": "python", "code": "...", "stdin": "..."}
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	switch {
	case req.Code == "":
		writeError(w, apperror.ValidationFailed("code", "code cannot be empty"))
		return
	case len(req.Code) > service.MaxCodeLength:
		writeError(w, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or fewer", service.MaxCodeLength)))
		return
	}

	lang := executor.NormalizeLanguage(req.Language)
	h.logger.Debug("executing code", slog.String("language", lang), slog.Int("bytes", len(req.Code)))

	result, err := h.exec.Execute(r.Context(), req)
	if err != nil {
		h.observe(lang, "error")
		h.logger.Error("code execution failed", slog.String("language", lang), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	status := result.Status
	switch {
	case result.TimedOut:
		status = "timed_out"
	case status == "":
		status = "completed"
	}
	h.observe(lang, status)

	writeJSON(w, http.StatusOK, result)
}

func (h *ExecuteHandler) observe(language, status string) {
	if h.observer != nil {
		h.observer.ObserveExecution(language, status)
	}
}
