package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime/debug"
	"strings"
	"time"
)

// ProcessConfig tunes the child-process isolate.
type ProcessConfig struct {
	// Command starts a process that calls ServeIsolate. Empty means the
	// running binary with the hidden "isolate" subcommand.
	Command []string
	// Env is appended to the parent's environment.
	Env []string
	// MemoryLimit caps the child's heap in bytes. Zero disables the cap.
	MemoryLimit int64
	// Goja is applied inside the child.
	Goja GojaConfig
}

// DefaultProcessConfig returns a 256 MiB memory cap and the default goja limits.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		MemoryLimit: 256 << 20,
		Goja:        DefaultGojaConfig(),
	}
}

// maxChildOutput bounds what the parent buffers from one child.
const maxChildOutput = 1 << 20

// ProcessIsolate runs every request in a fresh child process hosting a goja
// runtime. The parent never executes untrusted code: a deadline or a
// cancelled ctx kills the child's process group outright, so regexp
// backtracking or a huge allocation cannot outlive the timeout, and the
// kernel enforces the memory cap.
type ProcessIsolate struct {
	config ProcessConfig
	logger *slog.Logger
}

// NewProcessIsolate resolves the child command and returns the isolate.
func NewProcessIsolate(cfg ProcessConfig, logger *slog.Logger) (*ProcessIsolate, error) {
	if len(cfg.Command) == 0 {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("validator: locating own executable: %w", err)
		}
		cfg.Command = []string{self, "isolate"}
	}
	if cfg.Goja.MaxCallStackSize <= 0 {
		cfg.Goja.MaxCallStackSize = DefaultGojaConfig().MaxCallStackSize
	}
	if cfg.Goja.MaxLogLines <= 0 {
		cfg.Goja.MaxLogLines = DefaultGojaConfig().MaxLogLines
	}
	return &ProcessIsolate{config: cfg, logger: logger}, nil
}

func (p *ProcessIsolate) Name() string { return "process" }

// childRequest travels on the child's stdin.
type childRequest struct {
	CandidateSource  string `json:"candidateSource"`
	CheckerSource    string `json:"checkerSource"`
	MaxCallStackSize int    `json:"maxCallStackSize"`
	MaxLogLines      int    `json:"maxLogLines"`
	MemoryLimit      int64  `json:"memoryLimit"`
}

// childResponse is the one JSON document a child writes to stdout.
type childResponse struct {
	Passed  bool     `json:"passed"`
	Failure *Failure `json:"failure,omitempty"`
	Logs    []string `json:"logs,omitempty"`
}

func (p *ProcessIsolate) Run(ctx context.Context, req Request) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, err)
	}

	payload, err := json.Marshal(childRequest{
		CandidateSource:  req.CandidateSource,
		CheckerSource:    req.CheckerSource,
		MaxCallStackSize: p.config.Goja.MaxCallStackSize,
		MaxLogLines:      p.config.Goja.MaxLogLines,
		MemoryLimit:      p.config.MemoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("validator: encoding child request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.config.Command[0], p.config.Command[1:]...)
	cmd.Env = append(os.Environ(), p.config.Env...)
	cmd.Stdin = bytes.NewReader(payload)
	stdout := newCappedBuffer(maxChildOutput)
	stderr := newCappedBuffer(maxChildOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureChild(cmd)
	// Returns from Wait even if something inherited the output pipes.
	cmd.WaitDelay = time.Second

	start := time.Now()
	waitErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return nil, fmt.Errorf("validator: starting isolate process: %w", waitErr)
	}

	p.logger.Debug("isolate process finished",
		slog.Int("exitCode", cmd.ProcessState.ExitCode()),
		slog.Duration("duration", time.Since(start)),
	)

	if waitErr != nil {
		return &Verdict{Failure: runtimeFailure(childFailureMessage(stderr.String(), cmd.ProcessState.ExitCode()))}, nil
	}

	var resp childResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return &Verdict{Failure: runtimeFailure("malformed isolate response: " + err.Error())}, nil
	}
	return &Verdict{Passed: resp.Passed, Failure: resp.Failure, Logs: resp.Logs}, nil
}

// childFailureMessage explains a child that died instead of answering.
func childFailureMessage(stderr string, exitCode int) string {
	if strings.Contains(stderr, "out of memory") {
		return "Memory limit exceeded"
	}
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
		return last
	}
	return fmt.Sprintf("isolate process exited with code %d without reporting a result", exitCode)
}

// ServeIsolate is the child side of ProcessIsolate: it reads one request
// from r, applies the memory cap to the current process, runs the request
// in a GojaIsolate and writes the verdict to w. Call it from a process that
// does nothing else.
func ServeIsolate(ctx context.Context, r io.Reader, w io.Writer) error {
	var req childRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return fmt.Errorf("validator: decoding isolate request: %w", err)
	}

	if req.MemoryLimit > 0 {
		debug.SetMemoryLimit(req.MemoryLimit)
		if err := limitMemory(uint64(req.MemoryLimit)); err != nil {
			return fmt.Errorf("validator: limiting memory: %w", err)
		}
	}

	iso := NewGojaIsolate(GojaConfig{
		MaxCallStackSize: req.MaxCallStackSize,
		MaxLogLines:      req.MaxLogLines,
	})
	verdict, err := iso.Run(ctx, Request{
		CandidateSource: req.CandidateSource,
		CheckerSource:   req.CheckerSource,
	})
	if err != nil {
		return err
	}

	return json.NewEncoder(w).Encode(childResponse{
		Passed:  verdict.Passed,
		Failure: verdict.Failure,
		Logs:    verdict.Logs,
	})
}

// cappedBuffer keeps the first limit bytes written to it and silently drops
// the rest, so a chatty child cannot grow the parent's heap.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) Bytes() []byte  { return c.buf.Bytes() }
func (c *cappedBuffer) String() string { return c.buf.String() }
