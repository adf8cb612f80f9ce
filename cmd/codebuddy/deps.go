package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/sakif/codebuddy/internal/config"
	"github.com/sakif/codebuddy/internal/executor"
	"github.com/sakif/codebuddy/internal/executor/docker"
	"github.com/sakif/codebuddy/internal/executor/judge0"
	"github.com/sakif/codebuddy/internal/ratelimit"
	"github.com/sakif/codebuddy/internal/validator"
)

// buildValidator creates the configured isolate backend. The returned
// closers release docker containers when the docker backend is used.
func buildValidator(cfg config.ValidatorConfig, logger *slog.Logger, opts ...validator.Option) (*validator.Validator, []io.Closer, error) {
	vcfg := validator.Config{
		Timeout:       cfg.Timeout,
		MaxTimeout:    cfg.MaxTimeout,
		MaxConcurrent: cfg.MaxConcurrent,
	}

	switch cfg.Backend {
	case "", "process":
		isolate, err := validator.NewProcessIsolate(validator.ProcessConfig{
			MemoryLimit: cfg.MaxMemory,
			Goja: validator.GojaConfig{
				MaxCallStackSize: validator.DefaultGojaConfig().MaxCallStackSize,
				MaxLogLines:      cfg.MaxLogLines,
			},
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("starting process validator: %w", err)
		}
		return validator.New(isolate, vcfg, logger, opts...), nil, nil

	case "goja":
		isolate := validator.NewGojaIsolate(validator.GojaConfig{
			MaxCallStackSize: validator.DefaultGojaConfig().MaxCallStackSize,
			MaxLogLines:      cfg.MaxLogLines,
		})
		return validator.New(isolate, vcfg, logger, opts...), nil, nil

	case "docker":
		dcfg := docker.NodeConfig()
		// The harness enforces the per-request deadline; the container
		// timeout only has to outlast the longest allowed one.
		if cfg.MaxTimeout > 0 {
			dcfg.Timeout = cfg.MaxTimeout
		}
		exec, err := docker.New(dcfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("starting docker validator: %w", err)
		}
		isolate := validator.NewDockerIsolate(exec, logger)
		return validator.New(isolate, vcfg, logger, opts...), []io.Closer{exec}, nil

	default:
		return nil, nil, fmt.Errorf("unknown validator backend %q", cfg.Backend)
	}
}

// buildExecutor assembles the /api/execute runner. It returns a nil
// Executor when nothing could be started; the route then answers 503.
func buildExecutor(cfg config.ExecutorConfig, logger *slog.Logger) (executor.Executor, []io.Closer) {
	router := executor.NewRouter()
	var closers []io.Closer

	switch cfg.Backend {
	case "none":
		return nil, nil

	case "docker":
		for _, lang := range cfg.Docker.Languages {
			var dcfg docker.Config
			switch executor.NormalizeLanguage(lang) {
			case "javascript":
				dcfg = docker.NodeConfig()
			case "python":
				dcfg = docker.PythonConfig()
			default:
				logger.Warn("no docker image for language, skipping", slog.String("language", lang))
				continue
			}
			if cfg.Docker.PoolSize > 0 {
				dcfg.PoolSize = cfg.Docker.PoolSize
			}
			if cfg.Docker.Timeout > 0 {
				dcfg.Timeout = cfg.Docker.Timeout
			}

			exec, err := docker.New(dcfg, logger)
			if err != nil {
				logger.Warn("docker executor unavailable",
					slog.String("language", dcfg.Language),
					slog.String("error", err.Error()),
				)
				continue
			}
			router.Handle(dcfg.Language, exec)
			closers = append(closers, exec)
		}

	case "judge0":
		if cfg.Judge0.APIKey == "" && cfg.Judge0.BaseURL == judge0.DefaultConfig().BaseURL {
			logger.Warn("judge0 API key not set, /api/execute is disabled")
			return nil, nil
		}
		router.Default = judge0.New(judge0.Config{
			BaseURL:      cfg.Judge0.BaseURL,
			APIKey:       cfg.Judge0.APIKey,
			Host:         cfg.Judge0.Host,
			PollInterval: cfg.Judge0.PollInterval,
			MaxWait:      cfg.Judge0.MaxWait,
		}, logger)
	}

	if router.Empty() {
		return nil, closers
	}
	logger.Info("code execution enabled",
		slog.String("backend", cfg.Backend),
		slog.Any("languages", router.Languages()),
	)
	return router, closers
}

// buildLimiter uses redis when an address is configured so that every
// replica shares one budget, and an in-process limiter otherwise.
func buildLimiter(ctx context.Context, cfg config.RateLimitConfig, logger *slog.Logger) (ratelimit.Limiter, []io.Closer, error) {
	policy := ratelimit.Policy{Limit: cfg.Limit, Window: cfg.Window}

	if cfg.RedisAddr == "" {
		logger.Info("rate limiting in memory", slog.Int("limit", policy.Limit), slog.Duration("window", policy.Window))
		return ratelimit.NewMemoryLimiter(policy), nil, nil
	}

	rcfg := ratelimit.DefaultRedisConfig()
	rcfg.Addr = cfg.RedisAddr
	rcfg.Password = cfg.RedisPassword
	rcfg.DB = cfg.RedisDB

	client, err := ratelimit.NewRedisClient(ctx, rcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info("rate limiting in redis", slog.String("addr", cfg.RedisAddr), slog.Int("limit", policy.Limit))
	return ratelimit.NewRedisLimiter(client, policy, cfg.Prefix), []io.Closer{client}, nil
}
