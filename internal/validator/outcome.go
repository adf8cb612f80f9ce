package validator

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the terminal state of one validation.
type Status string

const (
	StatusPassed   Status = "passed"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// FailureKind separates checker-reported mismatches from everything else
// that can go wrong while running untrusted code.
type FailureKind string

const (
	// FailureMismatch is raised by the checker through fail() or expectEqual().
	FailureMismatch FailureKind = "mismatch"
	// FailureRuntime covers syntax errors, thrown exceptions, non-function
	// sources and checkers that return a falsy value.
	FailureRuntime FailureKind = "runtime_error"
)

// Failure describes why a candidate was rejected.
type Failure struct {
	Kind     FailureKind `json:"kind"`
	TestCase int         `json:"testCase,omitempty"`
	Expected string      `json:"expected,omitempty"`
	Actual   string      `json:"actual,omitempty"`
	Message  string      `json:"message"`
}

// Outcome is produced exactly once per Validate call.
type Outcome struct {
	Status   Status        `json:"status"`
	Failure  *Failure      `json:"failure,omitempty"`
	Logs     []string      `json:"logs,omitempty"`
	Duration time.Duration `json:"duration"`
	Timeout  time.Duration `json:"timeout"`
}

// Passed reports whether the candidate satisfied the checker.
func (o *Outcome) Passed() bool {
	return o != nil && o.Status == StatusPassed
}

// Reason is the human-readable explanation shown to the learner.
// It is empty for a passing outcome.
func (o *Outcome) Reason() string {
	switch {
	case o == nil || o.Status == StatusPassed:
		return ""
	case o.Status == StatusTimedOut:
		return fmt.Sprintf("Time limit exceeded: no result within %s", o.Timeout)
	case o.Failure != nil:
		return o.Failure.Message
	default:
		return "validation failed"
	}
}

// Verdict is what an Isolate reports when the run completed on its own.
type Verdict struct {
	Passed  bool
	Failure *Failure
	Logs    []string
}

func runtimeFailure(message string) *Failure {
	return &Failure{Kind: FailureRuntime, Message: message}
}

// wireVerdict is the JSON shape emitted by js/runner.js.
type wireVerdict struct {
	Kind     string `json:"kind"`
	TestCase int    `json:"testCase"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Message  string `json:"message"`
}

// decodeVerdict turns one emitted line into a Verdict. Anything malformed
// becomes a runtime failure rather than an error: the line came from
// untrusted code.
func decodeVerdict(line string) *Verdict {
	var w wireVerdict
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return &Verdict{Failure: runtimeFailure("malformed verdict: " + err.Error())}
	}

	switch w.Kind {
	case "passed":
		return &Verdict{Passed: true}
	case "failure":
		msg := w.Message
		if msg == "" {
			msg = fmt.Sprintf("Test Case %d: Expected %s but got %s", w.TestCase, w.Expected, w.Actual)
		}
		return &Verdict{Failure: &Failure{
			Kind:     FailureMismatch,
			TestCase: w.TestCase,
			Expected: w.Expected,
			Actual:   w.Actual,
			Message:  msg,
		}}
	case "error":
		return &Verdict{Failure: runtimeFailure(w.Message)}
	default:
		return &Verdict{Failure: runtimeFailure(fmt.Sprintf("unknown verdict kind %q", w.Kind))}
	}
}
