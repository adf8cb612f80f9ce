package handler

import (
	"net/http"

	"github.com/sakif/codebuddy/internal/apperror"
)

// Pinger is implemented by *sqlite.DB.
type Pinger interface {
	Ping() error
}

// HandleHealth reports 200 while the database answers and 503 otherwise.
//
// HTTP: GET /healthz
func HandleHealth(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleUnavailable answers 503 for a feature the server was started
// without, such as code execution with no runner configured.
func HandleUnavailable(subsystem string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, apperror.Unavailable(subsystem))
	}
}
