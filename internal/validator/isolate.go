package validator

import (
	"context"
	_ "embed"
	"errors"
	"time"
)

//go:embed js/prelude.js
var preludeSource string

//go:embed js/runner.js
var runnerSource string

// ErrInterrupted is returned by an Isolate whose context was cancelled
// before the run finished.
var ErrInterrupted = errors.New("validator: execution interrupted")

// Request is one validation attempt. Both sources must be function
// expressions such as "function twoSum(nums, target) { ... }".
type Request struct {
	CandidateSource string
	CheckerSource   string
	// Timeout overrides the configured default when non-zero.
	Timeout time.Duration
}

// Isolate runs a single request in a fresh execution context.
//
// Run must not return until everything it started has been torn down, and it
// must return promptly with ErrInterrupted once ctx is done. Implementations
// never share state between calls, so one Isolate value may serve many
// concurrent requests.
type Isolate interface {
	Name() string
	Run(ctx context.Context, req Request) (*Verdict, error)
}

// logBuffer collects console output up to a fixed number of lines.
type logBuffer struct {
	max       int
	lines     []string
	truncated bool
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

func (b *logBuffer) add(line string) {
	if len(b.lines) >= b.max {
		b.truncated = true
		return
	}
	if len(line) > maxLogLineLength {
		line = line[:maxLogLineLength] + "..."
	}
	b.lines = append(b.lines, line)
}

func (b *logBuffer) result() []string {
	if b.truncated {
		return append(b.lines, "... output truncated")
	}
	return b.lines
}

const maxLogLineLength = 1000
