package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a hierarchy config file",
		Long: `Validate a product hierarchy config: YAML syntax, required names at
every level, at least one plan per product, and that every failure rule
expression compiles.`,
		Example: `  # Validate the configured catalog
  probe validate

  # Validate a specific file
  probe validate ./config/products.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			path := cfg.CatalogPath
			if len(args) > 0 {
				path = args[0]
			}

			tel, err := telemetry.New(cfg.telemetryConfig(cmd.Root().Version))
			if err != nil {
				return err
			}

			catalogCfg, err := catalog.NewLoader(tel.Logger).Load(path)
			if err != nil {
				return err
			}
			if _, err := engine.NewRulePolicy(catalogCfg.FailureRules); err != nil {
				return err
			}

			combos, err := catalog.New(catalogCfg).Resolve(catalog.Selection{})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d categories, %d combinations, %d failure rules)\n",
				path, len(catalogCfg.Categories), len(combos), len(catalogCfg.FailureRules))
			return nil
		},
	}

	return cmd
}
