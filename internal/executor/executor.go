// Package executor runs arbitrary programs for the "Run code" console and
// backs the docker validation isolate.
package executor

import (
	"context"
	"strings"
	"time"
)

// ExecutionRequest represents a request to execute a program.
type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Stdin    string `json:"stdin,omitempty"`
}

// ExecutionResult represents the output and status of the code execution.
type ExecutionResult struct {
	Stdout        string        `json:"stdout"`
	Stderr        string        `json:"stderr"`
	CompileOutput string        `json:"compileOutput,omitempty"`
	ExitCode      int           `json:"exitCode"`
	Status        string        `json:"status,omitempty"`
	TimedOut      bool          `json:"timedOut"`
	MemoryKB      int64         `json:"memoryKb,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Executor represents the core interface for running code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// NormalizeLanguage maps the aliases the editor sends to canonical names.
func NormalizeLanguage(lang string) string {
	switch l := strings.ToLower(strings.TrimSpace(lang)); l {
	case "", "js", "node", "nodejs":
		return "javascript"
	case "py", "python3":
		return "python"
	case "c++":
		return "cpp"
	case "golang":
		return "go"
	default:
		return l
	}
}
