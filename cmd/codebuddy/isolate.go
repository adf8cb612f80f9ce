package main

import (
	"github.com/spf13/cobra"

	"github.com/sakif/codebuddy/internal/validator"
)

// isolateCmd is the child half of the process validator backend: one
// request on stdin, one verdict on stdout, then exit. The parent kills it
// when the deadline passes.
var isolateCmd = &cobra.Command{
	Use:    "isolate",
	Short:  "Run one validation request from stdin (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return validator.ServeIsolate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(isolateCmd)
}
