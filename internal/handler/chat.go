package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/sakif/codebuddy/internal/apperror"
	"github.com/sakif/codebuddy/internal/middleware"
	"github.com/sakif/codebuddy/internal/ratelimit"
	"github.com/sakif/codebuddy/internal/service"
)

// ChatHandler streams the AI tutor's replies, either as a chunked plain-text
// HTTP response or as JSON frames over a websocket.
type ChatHandler struct {
	chat     *service.ChatService
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// limiter applies to each websocket message; the HTTP route is limited
	// by middleware instead. Both use the key of limitRoute.
	limiter    ratelimit.Limiter
	limitRoute string
}

// NewChatHandler creates a ChatHandler. allowedOrigins restricts websocket
// upgrades; an empty list allows same-origin requests only.
func NewChatHandler(chat *service.ChatService, allowedOrigins []string, logger *slog.Logger) *ChatHandler {
	h := &ChatHandler{chat: chat, logger: logger}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[strings.TrimRight(o, "/")] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed[r.Header.Get("Origin")]
		}
	}
	return h
}

// LimitMessages rate-limits every message received over a websocket against
// the same per-user budget as the HTTP route named route.
func (h *ChatHandler) LimitMessages(l ratelimit.Limiter, route string) {
	h.limiter = l
	h.limitRoute = route
}

type chatRequest struct {
	Messages []service.ChatMessage `json:"messages"`
}

// HandleMessage streams the reply to a conversation as plain text, flushing
// after every delta.
//
// HTTP: POST /api/message {"messages": [{"id", "isUserMessage", "text"}, ...]}
//
// Validation errors are ordinary JSON errors. Once the first delta is
// written the status is fixed at 200, so a later model error just ends the
// stream early.
func (h *ChatHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var in chatRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	if err := service.ValidateHistory(in.Messages); err != nil {
		writeError(w, err)
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	err := h.chat.Stream(r.Context(), in.Messages, func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	switch {
	case err == nil && !started:
		// The model produced nothing printable.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	case err != nil && !started:
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "upstream_error",
			Message: "the tutor is unavailable right now, try again shortly",
		})
	case err != nil:
		h.logger.Warn("chat stream ended early", slog.String("error", err.Error()))
	}
}

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type     string                `json:"type"`
	Messages []service.ChatMessage `json:"messages"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// HandleWebSocket upgrades the connection and answers every
// {"type":"message","messages":[...]} frame with text_delta frames followed
// by one done frame carrying the whole reply, or an error frame.
//
// HTTP: GET /api/message/ws
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}

		if msg.Type != "message" {
			h.wsWrite(conn, wsOutgoing{Type: "error", Content: "invalid message"})
			continue
		}

		if !h.allow(r) {
			if h.wsWrite(conn, wsOutgoing{Type: "error", Content: "too many requests, slow down"}) != nil {
				return
			}
			continue
		}

		var reply strings.Builder
		err := h.chat.Stream(r.Context(), msg.Messages, func(delta string) error {
			reply.WriteString(delta)
			return h.wsWrite(conn, wsOutgoing{Type: "text_delta", Content: delta})
		})
		if err != nil {
			var appErr *apperror.AppError
			content := "the tutor is unavailable right now, try again shortly"
			switch {
			case errors.As(err, &appErr):
				content = appErr.Message
			case r.Context().Err() != nil:
				content = "interrupted"
			}
			if h.wsWrite(conn, wsOutgoing{Type: "error", Content: content}) != nil {
				return
			}
			continue
		}

		if h.wsWrite(conn, wsOutgoing{Type: "done", Content: reply.String()}) != nil {
			return
		}
	}
}

// allow fails open, like the HTTP middleware.
func (h *ChatHandler) allow(r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	d, err := h.limiter.Allow(r.Context(), middleware.RateLimitKey(h.limitRoute, r))
	if err != nil {
		h.logger.Warn("rate limiter unavailable, allowing message", slog.String("error", err.Error()))
		return true
	}
	return d.Allowed
}

func (h *ChatHandler) wsWrite(conn *websocket.Conn, v wsOutgoing) error {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("websocket marshal error", slog.String("error", err.Error()))
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Debug("websocket write error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
