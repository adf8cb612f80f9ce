package docker

import (
	"time"
)

// Config holds the configuration for Docker execution.
type Config struct {
	// Language is the canonical language name this executor accepts.
	Language string
	// Image is the Docker image to use for execution.
	Image string
	// Command is the interpreter invocation; the program source is appended
	// as the final argument.
	Command []string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// Timeout is the maximum amount of time the execution can take.
	Timeout time.Duration
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int
}

// DefaultConfig provides sensible defaults for a JavaScript sandbox, the
// language every problem checker is written in.
func DefaultConfig() Config {
	return NodeConfig()
}

// NodeConfig runs programs with `node -e`.
func NodeConfig() Config {
	return Config{
		Language: "javascript",
		Image:    "node:20-alpine",
		Command:  []string{"node", "--max-old-space-size=96", "-e"},
		// 128 MB memory limit
		MemoryLimit: 128 * 1024 * 1024,
		// 0.5 CPU shares
		CPULimit: 0.5,
		Timeout:  10 * time.Second,
		PoolSize: 3,
	}
}

// PythonConfig runs programs with `python -c`.
func PythonConfig() Config {
	return Config{
		Language:    "python",
		Image:       "python:3.12-alpine",
		Command:     []string{"python", "-c"},
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		Timeout:     5 * time.Second,
		PoolSize:    2,
	}
}
