package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sakif/codebuddy/internal/auth"
	"github.com/sakif/codebuddy/internal/llm"
	"github.com/sakif/codebuddy/internal/mail"
	"github.com/sakif/codebuddy/internal/metrics"
	"github.com/sakif/codebuddy/internal/problem"
	sqliteRepo "github.com/sakif/codebuddy/internal/repository/sqlite"
	"github.com/sakif/codebuddy/internal/server"
	"github.com/sakif/codebuddy/internal/service"
	"github.com/sakif/codebuddy/internal/validator"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CodeBuddy HTTP server",
	Long: `Start the HTTP API: accounts, the problem list, graded submissions,
code execution and the AI tutor.

Examples:
  codebuddy serve
  codebuddy serve --port 9090
  CODEBUDDY_VALIDATOR_BACKEND=docker codebuddy serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Everything opened below is handed to the server, which closes it on
	// shutdown. Until then we own it.
	var closers []io.Closer
	var db *sqliteRepo.DB
	handedOff := false
	defer func() {
		if handedOff {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		if db != nil {
			db.Close()
		}
	}()

	if dir := filepath.Dir(cfg.Storage.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err = sqliteRepo.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	catalog, err := problem.Load()
	if err != nil {
		return fmt.Errorf("loading problem catalog: %w", err)
	}
	synced, err := service.NewProblemService(catalog, db, db, logger).SyncCatalog(ctx)
	if err != nil {
		return fmt.Errorf("syncing problem catalog: %w", err)
	}
	logger.Info("problem catalog synced", slog.Int("problems", synced))

	collector := metrics.NewCollector()

	v, vClosers, err := buildValidator(cfg.Validator, logger, validator.WithRecorder(collector))
	if err != nil {
		return err
	}
	closers = append(closers, vClosers...)

	exec, eClosers := buildExecutor(cfg.Executor, logger)
	closers = append(closers, eClosers...)

	limiter, lClosers, err := buildLimiter(ctx, cfg.RateLimit, logger)
	if err != nil {
		return err
	}
	closers = append(closers, lClosers...)

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var github *auth.GitHubProvider
	if cfg.Auth.GitHub.Enabled() {
		github = auth.NewGitHubProvider(auth.GitHubConfig{
			ClientID:     cfg.Auth.GitHub.ClientID,
			ClientSecret: cfg.Auth.GitHub.ClientSecret,
			CallbackURL:  cfg.Auth.GitHub.CallbackURL,
		})
	} else {
		logger.Info("GitHub login disabled (auth.github.client_id not set)")
	}

	var tutor llm.Client
	if cfg.Chat.Enabled() {
		tutor = llm.NewClient(llm.Config{
			BaseURL:     cfg.Chat.BaseURL,
			APIKey:      cfg.Chat.APIKey,
			Model:       cfg.Chat.Model,
			Temperature: cfg.Chat.Temperature,
			TopP:        cfg.Chat.TopP,
			MaxTokens:   cfg.Chat.MaxTokens,
			MaxAttempts: cfg.Chat.MaxAttempts,
		}, logger)
	} else {
		logger.Warn("chat.api_key not set, the AI tutor is disabled")
	}

	composer := mail.Composer{BaseURL: cfg.Server.BaseURL, From: cfg.Mail.From}

	srv, err := server.New(server.Config{
		Port:            cfg.Server.Port,
		SecureCookies:   cfg.Server.SecureCookies,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Mail:            composer,
		OneTimeTokenTTL: cfg.Auth.TokenExpiry,
	}, server.Deps{
		DB:        db,
		Catalog:   catalog,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(),
		Validator: v,
		Mailer:    mail.NewLogMailer(logger, cfg.Mail.From),
		Limiter:   limiter,
		Metrics:   collector,
		GitHub:    github,
		Executor:  exec,
		LLM:       tutor,
		Closers:   closers,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	handedOff = true

	return srv.Start(ctx)
}
