package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sakif/codebuddy/internal/executor"
)

// harnessLoader is the whole `node -e` program. The harness itself arrives on
// stdin, so neither the sources nor the verdict marker show up in the
// process arguments. The loader hands the harness the two capabilities it
// needs and nothing else.
const harnessLoader = `(function (fs, exit) { "use strict"; (0, eval)(fs.readFileSync(0, "utf8"))(fs.writeSync, exit); })(require("fs"), process.exit.bind(process));`

// DockerIsolate runs each request as a throwaway node process inside a
// container from the executor's pool. Cancelling ctx makes the executor
// force-remove the container, which kills the process.
type DockerIsolate struct {
	exec        executor.Executor
	logger      *slog.Logger
	maxLogLines int
}

// NewDockerIsolate wraps a JavaScript-capable executor.
func NewDockerIsolate(exec executor.Executor, logger *slog.Logger) *DockerIsolate {
	return &DockerIsolate{
		exec:        exec,
		logger:      logger,
		maxLogLines: DefaultGojaConfig().MaxLogLines,
	}
}

func (d *DockerIsolate) Name() string { return "docker" }

func (d *DockerIsolate) Run(ctx context.Context, req Request) (*Verdict, error) {
	marker := "@@codebuddy-verdict-" + uuid.NewString() + "@@"

	script, err := buildHarness(req, marker)
	if err != nil {
		return nil, err
	}

	res, err := d.exec.Execute(ctx, executor.ExecutionRequest{
		Language: "javascript",
		Code:     harnessLoader,
		Stdin:    script,
	})
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	}
	if err != nil {
		return nil, fmt.Errorf("validator: running harness: %w", err)
	}

	d.logger.Debug("harness finished",
		slog.Int("exitCode", res.ExitCode),
		slog.Duration("duration", res.Duration),
	)

	return parseHarnessOutput(res, marker, d.maxLogLines), nil
}

// buildHarness produces the script fed to harnessLoader: prelude, runner and
// the request payload. It evaluates to a function(writeSync, exit) that
// removes the node globals from candidate reach, runs the checker and writes
// the verdict to fd 1 on a line tagged by marker.
func buildHarness(req Request, marker string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"candidateSource": req.CandidateSource,
		"checkerSource":   req.CheckerSource,
	})
	if err != nil {
		return "", fmt.Errorf("validator: encoding harness payload: %w", err)
	}
	markerJSON, err := json.Marshal(marker)
	if err != nil {
		return "", fmt.Errorf("validator: encoding harness marker: %w", err)
	}

	var b strings.Builder
	b.WriteString(preludeSource)
	b.WriteString("\n;(function (request, marker) {\n")
	b.WriteString("\"use strict\";\n")
	b.WriteString("var run = (")
	b.WriteString(runnerSource)
	b.WriteString(");\n")
	b.WriteString(`return function (writeSync, exit) {
  var hidden = ["process", "require", "module", "exports", "__filename", "__dirname"];
  for (var i = 0; i < hidden.length; i++) {
    delete globalThis[hidden[i]];
  }
  run(request, function (line) { writeSync(1, "\n" + marker + line + "\n"); });
  exit(0);
};
`)
	b.WriteString("})(")
	b.Write(payload)
	b.WriteString(", ")
	b.Write(markerJSON)
	b.WriteString(")\n")
	return b.String(), nil
}

// parseHarnessOutput separates console output from the verdict line. Only
// the first marked line counts; the harness writes it before control can
// return to anything the candidate scheduled. A process that died without
// reporting (out of memory, a crash) is a runtime failure carrying whatever
// it wrote to stderr.
func parseHarnessOutput(res *executor.ExecutionResult, marker string, maxLogLines int) *Verdict {
	logs := newLogBuffer(maxLogLines)
	verdictLine := ""
	found := false

	for _, line := range strings.Split(res.Stdout, "\n") {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			if !found {
				verdictLine = rest
				found = true
			}
			continue
		}
		if line != "" {
			logs.add(line)
		}
	}

	if !found {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("process exited with code %d without reporting a result", res.ExitCode)
		}
		return &Verdict{Failure: runtimeFailure(msg), Logs: logs.result()}
	}

	v := decodeVerdict(verdictLine)
	v.Logs = logs.result()
	return v
}
