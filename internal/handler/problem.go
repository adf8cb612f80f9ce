package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codebuddy/internal/auth"
	"github.com/sakif/codebuddy/internal/service"
)

// ProblemHandler serves the problem list and the problem workspace. Both
// routes work signed out; a signed-in user also gets their progress.
type ProblemHandler struct {
	problems *service.ProblemService
	logger   *slog.Logger
}

func NewProblemHandler(problems *service.ProblemService, logger *slog.Logger) *ProblemHandler {
	return &ProblemHandler{problems: problems, logger: logger}
}

// HandleList returns every problem ordered by its position in the list.
//
// HTTP: GET /api/problems (OptionalAuth)
func (h *ProblemHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	list, err := h.problems.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing problems failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleGet returns the statement, examples and starter code of a problem.
// The checker and reference solution are never sent.
//
// HTTP: GET /api/problems/{id} (OptionalAuth)
func (h *ProblemHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	detail, err := h.problems.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
