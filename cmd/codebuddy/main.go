// Command codebuddy runs the coding-practice server and its maintenance
// commands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/codebuddy/internal/config"
)

var (
	configFlag    string
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "codebuddy",
	Short: "CodeBuddy - coding practice with graded submissions",
	Long: `CodeBuddy serves a catalog of interview-style problems, grades submitted
JavaScript solutions in a sandbox and offers an AI tutor.

Configuration comes from codebuddy.yaml (./ or $HOME/.codebuddy/) and
CODEBUDDY_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Config file (default: ./codebuddy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format: text or json (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config and applies the persistent flag overrides.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Log.Format = logFormatFlag
	}

	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	if cfg.File != "" {
		logger.Debug("config loaded", slog.String("file", cfg.File))
	}
	return cfg, logger, nil
}
