package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Compiled once; a *goja.Program can be run by any number of runtimes.
var (
	preludeProgram = goja.MustCompile("prelude.js", preludeSource, false)
	runnerProgram  = goja.MustCompile("runner.js", runnerSource, false)
)

// GojaConfig tunes the in-process isolate.
type GojaConfig struct {
	// MaxCallStackSize bounds JS recursion. Without it a runaway recursive
	// candidate would grow the Go stack until the process dies.
	MaxCallStackSize int
	// MaxLogLines caps captured console output per request.
	MaxLogLines int
}

// DefaultGojaConfig returns limits suitable for interview-sized problems.
func DefaultGojaConfig() GojaConfig {
	return GojaConfig{
		MaxCallStackSize: 10000,
		MaxLogLines:      100,
	}
}

// GojaIsolate runs every request in a brand-new goja.Runtime. The runtime
// sees only the prelude helpers and a captured console; it has no access to
// the file system, network or any Go state.
type GojaIsolate struct {
	config GojaConfig
}

// NewGojaIsolate creates an isolate with the given limits.
func NewGojaIsolate(cfg GojaConfig) *GojaIsolate {
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = DefaultGojaConfig().MaxCallStackSize
	}
	if cfg.MaxLogLines <= 0 {
		cfg.MaxLogLines = DefaultGojaConfig().MaxLogLines
	}
	return &GojaIsolate{config: cfg}
}

func (g *GojaIsolate) Name() string { return "goja" }

// Run materializes both sources in a fresh runtime and calls checker(candidate).
// Cancelling ctx interrupts the runtime at its next instruction, so a tight
// loop stops promptly but a single long native call (a backtracking regexp,
// a huge String.repeat) runs to completion first. ProcessIsolate wraps this
// in a process that can be killed instead.
func (g *GojaIsolate) Run(ctx context.Context, req Request) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, err)
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(g.config.MaxCallStackSize)

	logs := newLogBuffer(g.config.MaxLogLines)
	if err := installConsole(vm, logs); err != nil {
		return nil, fmt.Errorf("validator: installing console: %w", err)
	}

	if _, err := vm.RunProgram(preludeProgram); err != nil {
		return nil, fmt.Errorf("validator: loading prelude: %w", err)
	}
	runnerValue, err := vm.RunProgram(runnerProgram)
	if err != nil {
		return nil, fmt.Errorf("validator: loading runner: %w", err)
	}
	runner, ok := goja.AssertFunction(runnerValue)
	if !ok {
		return nil, errors.New("validator: runner did not evaluate to a function")
	}

	// Watchdog: the only way to stop a goja runtime from the outside.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	var verdict *Verdict
	emit := func(call goja.FunctionCall) goja.Value {
		if verdict == nil {
			verdict = decodeVerdict(call.Argument(0).String())
		}
		return goja.Undefined()
	}

	request := vm.NewObject()
	_ = request.Set("candidateSource", req.CandidateSource)
	_ = request.Set("checkerSource", req.CheckerSource)

	_, err = runner(goja.Undefined(), request, vm.ToValue(emit))
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
		}
		// The runner catches everything JS can catch. What escapes is an
		// engine-level abort such as a call stack overflow.
		return &Verdict{Failure: runtimeFailure(err.Error()), Logs: logs.result()}, nil
	}

	if verdict == nil {
		verdict = &Verdict{Failure: runtimeFailure("no verdict was reported")}
	}
	verdict.Logs = logs.result()
	return verdict, nil
}

// installConsole exposes console.log and friends, all writing to logs.
func installConsole(vm *goja.Runtime, logs *logBuffer) error {
	record := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, formatLogArg(arg))
		}
		logs.add(strings.Join(parts, " "))
		return goja.Undefined()
	}

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(name, record); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

func formatLogArg(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(obj); isFn {
			return "[Function]"
		}
		if b, err := json.Marshal(obj.Export()); err == nil {
			return string(b)
		}
	}
	return v.String()
}
