// Package server wires handlers, middleware and routes together and runs the
// HTTP server.
//
// Dependencies arrive fully built in Deps (the cmd package owns the choice of
// validator backend, code runner, limiter and so on); New only connects them:
//
//	sqlite.DB → services → handlers → chi routes
//
// Optional pieces (code execution, the AI tutor, GitHub login) are left out
// of the router or answered with 503 when their dependency is nil.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/codebuddy/internal/auth"
	"github.com/sakif/codebuddy/internal/executor"
	"github.com/sakif/codebuddy/internal/handler"
	"github.com/sakif/codebuddy/internal/llm"
	"github.com/sakif/codebuddy/internal/mail"
	"github.com/sakif/codebuddy/internal/metrics"
	"github.com/sakif/codebuddy/internal/middleware"
	"github.com/sakif/codebuddy/internal/problem"
	"github.com/sakif/codebuddy/internal/ratelimit"
	sqliteRepo "github.com/sakif/codebuddy/internal/repository/sqlite"
	"github.com/sakif/codebuddy/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port            int
	SecureCookies   bool
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	// Mail builds the links in verification and reset emails.
	Mail            mail.Composer
	OneTimeTokenTTL time.Duration
}

// Deps are the collaborators New wires into routes.
type Deps struct {
	DB        *sqliteRepo.DB
	Catalog   *problem.Catalog
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	Validator service.Validator

	Mailer  mail.Mailer
	Limiter ratelimit.Limiter
	Metrics *metrics.Collector

	// Optional.
	GitHub   *auth.GitHubProvider
	Executor executor.Executor
	LLM      llm.Client

	// Closers run after the HTTP server stops, last first. The DB is always
	// closed after them.
	Closers []io.Closer
}

// Server represents the HTTP server and everything it owns.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

// New checks deps, fills in defaults for the replaceable ones and builds the
// router.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("server: database is required")
	case deps.Catalog == nil:
		return nil, errors.New("server: problem catalog is required")
	case deps.Tokens == nil || deps.Passwords == nil:
		return nil, errors.New("server: token and password services are required")
	case deps.Validator == nil:
		return nil, errors.New("server: validator is required")
	}
	if deps.Mailer == nil {
		deps.Mailer = mail.NewLogMailer(logger, cfg.Mail.From)
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewMemoryLimiter(ratelimit.DefaultPolicy())
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// GET    /healthz, /metrics
// POST   /api/auth/{signup,login,logout,verify,forgot-password,reset-password}
// GET    /auth/github/{login,callback}              (GitHub configured)
// GET    /api/me, DELETE /api/me                    (auth)
// GET    /api/problems, /api/problems/{id}          (optional auth)
// PUT    /api/problems/{id}/attempt                 (auth)
// POST   /api/problems/{id}/submit                  (auth)
// GET    /api/attempts, DELETE /api/attempts/{id}   (auth)
// POST   /api/execute                               (auth)
// POST   /api/message, GET /api/message/ws          (auth, rate limited)
//
// Middleware order: RequestID first so the logger can report it, Recoverer
// inside the logger so a panic is still logged as a 500.
func (s *Server) setupRoutes() {
	d := s.deps

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === Services ===
	authService := service.NewAuthService(d.DB, d.Tokens, d.Passwords, d.Mailer, service.AuthConfig{
		Mail:            s.config.Mail,
		OneTimeTokenTTL: s.config.OneTimeTokenTTL,
	}, s.logger)
	problemService := service.NewProblemService(d.Catalog, d.DB, d.DB, s.logger)
	attemptService := service.NewAttemptService(d.DB, d.Catalog, d.Validator, s.logger)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, d.GitHub, s.config.SecureCookies, s.logger)
	problemHandler := handler.NewProblemHandler(problemService, s.logger)
	attemptHandler := handler.NewAttemptHandler(attemptService, s.logger)

	requireAuth := auth.RequireAuth(d.Tokens)
	optionalAuth := auth.OptionalAuth(d.Tokens)

	s.router.Get("/healthz", handler.HandleHealth(d.DB))
	s.router.Handle("/metrics", d.Metrics.Handler())

	if authHandler.GitHubEnabled() {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.Post("/verify", authHandler.HandleVerify)
			r.Post("/forgot-password", authHandler.HandleForgotPassword)
			r.Post("/reset-password", authHandler.HandleResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/problems", problemHandler.HandleList)
			r.Get("/problems/{id}", problemHandler.HandleGet)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", authHandler.HandleMe)
			r.Delete("/me", authHandler.HandleDeleteMe)

			r.Put("/problems/{id}/attempt", attemptHandler.HandleSave)
			r.Post("/problems/{id}/submit", attemptHandler.HandleSubmit)
			r.Get("/attempts", attemptHandler.HandleList)
			r.Delete("/attempts/{id}", attemptHandler.HandleDelete)

			if d.Executor != nil {
				executeHandler := handler.NewExecuteHandler(d.Executor, d.Metrics, s.logger)
				r.Post("/execute", executeHandler.HandleExecute)
			} else {
				r.Post("/execute", handler.HandleUnavailable("code execution"))
			}

			s.mountChat(r)
		})
	})
}

// chatRoute names the tutor's rate-limit budget.
const chatRoute = "chat"

// mountChat registers the tutor routes behind the per-user rate limit.
func (s *Server) mountChat(r chi.Router) {
	if s.deps.LLM == nil {
		r.Post("/message", handler.HandleUnavailable("the AI tutor"))
		r.Get("/message/ws", handler.HandleUnavailable("the AI tutor"))
		return
	}

	chatService := service.NewChatService(s.deps.LLM, s.deps.Metrics, s.logger)
	chatHandler := handler.NewChatHandler(chatService, s.config.AllowedOrigins, s.logger)
	// Tutor replies cost the same over HTTP and websocket, so both draw from
	// one per-user budget.
	chatHandler.LimitMessages(s.deps.Limiter, chatRoute)

	limit := func(route string) func(http.Handler) http.Handler {
		return middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:  s.deps.Limiter,
			Route:    route,
			Observer: s.deps.Metrics,
			Logger:   s.logger,
		})
	}

	r.With(limit(chatRoute)).Post("/message", chatHandler.HandleMessage)
	r.With(limit("chat-ws-connect")).Get("/message/ws", chatHandler.HandleWebSocket)
}

// Start serves until ctx is cancelled, then shuts down gracefully:
//  1. Stop accepting new connections
//  2. Wait up to ShutdownTimeout for in-flight requests
//  3. Run the closers, then close the database
func (s *Server) Start(ctx context.Context) error {
	defer s.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Submissions can run for the validator's max timeout and tutor
		// replies stream for a while.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("validator", validatorBackend(s.deps.Validator)),
			slog.Bool("execute", s.deps.Executor != nil),
			slog.Bool("chat", s.deps.LLM != nil),
			slog.Bool("github", s.deps.GitHub != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	for i := len(s.deps.Closers) - 1; i >= 0; i-- {
		if err := s.deps.Closers[i].Close(); err != nil {
			s.logger.Warn("closing dependency", slog.String("error", err.Error()))
		}
	}
	if err := s.deps.DB.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}

func validatorBackend(v service.Validator) string {
	if b, ok := v.(interface{ Backend() string }); ok {
		return b.Backend()
	}
	return "custom"
}
