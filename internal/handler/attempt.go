package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/auth"
	"github.com/sakif/codebuddy/internal/service"
)

// AttemptHandler saves and grades a signed-in user's code. Every route sits
// behind RequireAuth.
type AttemptHandler struct {
	attempts *service.AttemptService
	logger   *slog.Logger
}

func NewAttemptHandler(attempts *service.AttemptService, logger *slog.Logger) *AttemptHandler {
	return &AttemptHandler{attempts: attempts, logger: logger}
}

type codeRequest struct {
	Code string `json:"code"`
}

// HandleSave stores code without grading it.
//
// HTTP: PUT /api/problems/{id}/attempt
func (h *AttemptHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}
	var in codeRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.attempts.Save(r.Context(), userID, chi.URLParam(r, "id"), in.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// HandleSubmit grades code against the problem's checker.
//
// A failing or timed-out submission is still a 200: the verdict is in
// outcome.status and outcome.failure. Non-2xx means the code could not be
// graded at all.
//
// HTTP: POST /api/problems/{id}/submit
func (h *AttemptHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}
	var in codeRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	problemID := chi.URLParam(r, "id")
	res, err := h.attempts.Submit(r.Context(), userID, problemID, in.Code)
	if err != nil {
		h.logger.Warn("submission not graded",
			slog.String("problemID", problemID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{
		SubmitResult: res,
		Passed:       res.Outcome.Passed(),
		Reason:       res.Outcome.Reason(),
	})
}

type submitResponse struct {
	*service.SubmitResult
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// HandleList returns the user's attempts with problem metadata.
//
// HTTP: GET /api/attempts
func (h *AttemptHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	list, err := h.attempts.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleDelete removes the user's attempt for a problem.
//
// HTTP: DELETE /api/attempts/{id}
func (h *AttemptHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	if err := h.attempts.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
