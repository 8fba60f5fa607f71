package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "probe",
		Short: "PolicyProbe - insurance purchase-flow sanity runner",
		Long: `PolicyProbe drives the 7-step insurance purchase flow for every
Category/Product/Plan combination against a target environment and a staging
reference environment, records per-step progress durably, and compares the
responses field by field.

Features:
  - Catalog-driven combination matrix with hot reload
  - Sequential 14-call execution per combination with stop-on-failure
  - Durable per-step progress with atomic writes
  - Target-vs-staging field comparison with severity classes
  - HTTP polling API, sessions, and Prometheus metrics`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCatalogCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}
