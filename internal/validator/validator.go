// Package validator decides whether a learner's function satisfies a
// problem's checker function.
//
// Every call gets its own isolated execution context (see Isolate), races
// the run against a deadline and tears the context down before returning.
// The outcome is one of Passed, Failed(reason) or TimedOut; errors are
// reserved for infrastructure trouble such as an unreachable docker daemon.
//
// Checkers report a wrong answer with the prelude helper fail(i, expected,
// actual) or expectEqual(i, expected, actual). That structured failure
// travels back as a typed verdict, so nothing is inferred from message text.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sakif/codebuddy/internal/apperror"
)

// Config holds the validator limits.
type Config struct {
	// Timeout is the default per-request deadline.
	Timeout time.Duration
	// MaxTimeout caps per-request overrides.
	MaxTimeout time.Duration
	// MaxConcurrent bounds the number of isolates alive at once.
	MaxConcurrent int64
}

// DefaultConfig mirrors the platform's historical 5 second limit.
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		MaxTimeout:    30 * time.Second,
		MaxConcurrent: 8,
	}
}

// Recorder receives one observation per finished validation.
// *metrics.Collector implements it.
type Recorder interface {
	ObserveValidation(backend, status string, d time.Duration)
}

// Validator is safe for concurrent use.
type Validator struct {
	isolate  Isolate
	config   Config
	sem      *semaphore.Weighted
	logger   *slog.Logger
	recorder Recorder
}

// Option customises a Validator.
type Option func(*Validator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(v *Validator) { v.recorder = r }
}

// New creates a Validator that runs requests on isolate.
func New(isolate Isolate, cfg Config, logger *slog.Logger, opts ...Option) *Validator {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxTimeout < cfg.Timeout {
		cfg.MaxTimeout = cfg.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}

	v := &Validator{
		isolate: isolate,
		config:  cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Backend names the isolation backend in use.
func (v *Validator) Backend() string {
	return v.isolate.Name()
}

// EffectiveTimeout resolves a requested timeout against the configuration.
func (v *Validator) EffectiveTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return v.config.Timeout
	}
	if requested > v.config.MaxTimeout {
		return v.config.MaxTimeout
	}
	return requested
}

type runResult struct {
	verdict *Verdict
	err     error
}

// Validate runs checker(candidate) in a fresh isolate.
//
// The deadline starts once a concurrency slot is acquired. When it fires the
// isolate is killed and Validate waits for it to finish tearing down before
// reporting StatusTimedOut. Cancelling ctx does the same but returns ctx.Err().
func (v *Validator) Validate(ctx context.Context, req Request) (*Outcome, error) {
	if req.CandidateSource == "" {
		return nil, apperror.ValidationFailed("candidate", "candidate source is required")
	}
	if req.CheckerSource == "" {
		return nil, apperror.ValidationFailed("checker", "checker source is required")
	}

	if err := v.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("validator: waiting for a free slot: %w", err)
	}
	defer v.sem.Release(1)

	timeout := v.EffectiveTimeout(req.Timeout)
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan runResult, 1)
	go func() {
		verdict, err := v.isolate.Run(runCtx, req)
		done <- runResult{verdict: verdict, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var outcome *Outcome
	select {
	case res := <-done:
		if res.err != nil {
			v.logger.Error("validation run failed",
				slog.String("backend", v.isolate.Name()),
				slog.String("error", res.err.Error()),
			)
			return nil, fmt.Errorf("validator: %w", res.err)
		}
		outcome = outcomeFromVerdict(res.verdict)

	case <-timer.C:
		cancel()
		<-done // isolate is gone once this returns
		outcome = &Outcome{Status: StatusTimedOut}

	case <-ctx.Done():
		cancel()
		<-done
		return nil, ctx.Err()
	}

	outcome.Duration = time.Since(start)
	outcome.Timeout = timeout

	if v.recorder != nil {
		v.recorder.ObserveValidation(v.isolate.Name(), string(outcome.Status), outcome.Duration)
	}
	v.logger.Debug("validation finished",
		slog.String("backend", v.isolate.Name()),
		slog.String("status", string(outcome.Status)),
		slog.Duration("duration", outcome.Duration),
	)

	return outcome, nil
}

func outcomeFromVerdict(verdict *Verdict) *Outcome {
	if verdict == nil {
		return &Outcome{Status: StatusFailed, Failure: runtimeFailure("no verdict was reported")}
	}
	if verdict.Passed {
		return &Outcome{Status: StatusPassed, Logs: verdict.Logs}
	}
	failure := verdict.Failure
	if failure == nil {
		failure = runtimeFailure("validation failed")
	}
	return &Outcome{Status: StatusFailed, Failure: failure, Logs: verdict.Logs}
}

// IsInterrupted reports whether err came from a cancelled isolate.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}
