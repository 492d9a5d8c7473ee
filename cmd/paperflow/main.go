// Package main is the entry point for the paperflow CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GhUserLiu/paperflow/internal/app"
	"github.com/GhUserLiu/paperflow/internal/config"
	"github.com/GhUserLiu/paperflow/internal/observability"
)

// version is set at build time via ldflags.
var version = "dev"

// cfgFile is the --config flag value.
var cfgFile string

// rootCmd is the base command for the paperflow CLI.
var rootCmd = &cobra.Command{
	Use:   "paperflow",
	Short: "Collect preprints into a bibliography library",
	Long: `paperflow searches preprint services, ranks the results by journal
quality indicators, and files them into a remote bibliography library with
duplicate detection and attachment upload.

Each stage is a subcommand: search previews what a query finds, collect runs
the full ingestion pipeline, and collections lists filing targets.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/paperflow/config.yaml)")
}

// buildApp loads configuration and assembles the component graph. CLI runs
// skip Prometheus metrics; only the daemon exposes them.
func buildApp() (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := observability.NewLogger(cfg.Logging.Observability())
	return app.New(cfg, log, nil)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
