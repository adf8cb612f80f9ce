package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/codebuddy/internal/problem"
	"github.com/sakif/codebuddy/internal/validator"
)

var (
	fileFlag    string
	timeoutFlag time.Duration
	logsFlag    bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [problem-id]",
	Short: "Grade a solution against a problem's checker",
	Long: `Run a solution through the same validator the server uses and print
the verdict.

Without --file the problem's reference solution is graded. Without a
problem id every playable problem's reference solution is graded, which
is a quick way to check the catalog after editing it.

Examples:
  codebuddy validate
  codebuddy validate two-sum --file two-sum.js
  cat answer.js | codebuddy validate jump-game --file -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Solution file, - for stdin (default: reference solution)")
	validateCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Override the problem's time limit")
	validateCmd.Flags().BoolVar(&logsFlag, "logs", false, "Print captured console output")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := problem.Load()
	if err != nil {
		return fmt.Errorf("loading problem catalog: %w", err)
	}

	v, closers, err := buildValidator(cfg.Validator, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	var defs []*problem.Definition
	if len(args) == 1 {
		def, err := catalog.Lookup(args[0])
		if err != nil {
			return err
		}
		defs = append(defs, def)
	} else {
		if fileFlag != "" {
			return errors.New("--file needs a problem id")
		}
		for _, def := range catalog.All() {
			if def.Playable() {
				defs = append(defs, def)
			}
		}
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, def := range defs {
		code := def.Solution
		if fileFlag != "" {
			if code, err = readSolution(cmd.InOrStdin(), fileFlag); err != nil {
				return err
			}
		}

		fn, err := def.ExtractFunction(code)
		if err != nil {
			return fmt.Errorf("%s: %w", def.ID, err)
		}

		timeout := def.Timeout()
		if timeoutFlag > 0 {
			timeout = timeoutFlag
		}

		outcome, err := v.Validate(cmd.Context(), validator.Request{
			CandidateSource: fn,
			CheckerSource:   def.Checker,
			Timeout:         timeout,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", def.ID, err)
		}

		printOutcome(out, def.ID, outcome)
		if !outcome.Passed() {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d solutions did not pass", failed, len(defs))
	}
	return nil
}

func readSolution(stdin io.Reader, path string) (string, error) {
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading solution: %w", err)
	}
	return string(b), nil
}

func printOutcome(w io.Writer, id string, o *validator.Outcome) {
	mark := "PASS"
	switch o.Status {
	case validator.StatusFailed:
		mark = "FAIL"
	case validator.StatusTimedOut:
		mark = "TIME"
	}
	fmt.Fprintf(w, "%s  %-36s %s\n", mark, id, o.Duration.Round(time.Millisecond))
	if reason := o.Reason(); reason != "" {
		fmt.Fprintf(w, "      %s\n", reason)
	}
	if logsFlag && len(o.Logs) > 0 {
		fmt.Fprintf(w, "      console:\n        %s\n", strings.Join(o.Logs, "\n        "))
	}
}
