package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sakif/codebuddy/internal/problem"
	sqliteRepo "github.com/sakif/codebuddy/internal/repository/sqlite"
	"github.com/sakif/codebuddy/internal/service"
)

var problemsCmd = &cobra.Command{
	Use:     "problems",
	Aliases: []string{"problem", "p"},
	Short:   "Inspect the problem catalog",
}

var problemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in problems",
	Args:  cobra.NoArgs,
	RunE:  runProblemsList,
}

var problemsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Write the catalog's problem metadata to the database",
	Long: `Upsert every catalog problem into the database. "serve" does this on
start; run it by hand after editing the catalog of a stopped server.`,
	Args: cobra.NoArgs,
	RunE: runProblemsSync,
}

func init() {
	rootCmd.AddCommand(problemsCmd)
	problemsCmd.AddCommand(problemsListCmd, problemsSyncCmd)
}

func runProblemsList(cmd *cobra.Command, args []string) error {
	catalog, err := problem.Load()
	if err != nil {
		return fmt.Errorf("loading problem catalog: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tDIFFICULTY\tCATEGORY\tPLAYABLE\tTIME LIMIT")
	for _, def := range catalog.All() {
		limit := "-"
		if def.Playable() {
			limit = "default"
			if t := def.Timeout(); t > 0 {
				limit = t.String()
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%s\n",
			def.Order, def.ID, def.Difficulty, def.Category, def.Playable(), limit)
	}
	return tw.Flush()
}

func runProblemsSync(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	catalog, err := problem.Load()
	if err != nil {
		return fmt.Errorf("loading problem catalog: %w", err)
	}

	n, err := service.NewProblemService(catalog, db, db, logger).SyncCatalog(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synced %d problems to %s\n", n, cfg.Storage.DBPath)
	return nil
}
