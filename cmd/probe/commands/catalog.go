package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

func newCatalogCommand() *cobra.Command {
	var (
		category  string
		productID string
		planID    string
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the combinations a selection resolves to",
		Example: `  # Full combination matrix
  probe catalog

  # Combinations of one product
  probe catalog --category MV4 --product TOKIO_MARINE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}

			tel, err := telemetry.New(cfg.telemetryConfig(cmd.Root().Version))
			if err != nil {
				return err
			}

			catalogCfg, err := catalog.NewLoader(tel.Logger).Load(cfg.CatalogPath)
			if err != nil {
				return err
			}
			cat := catalog.New(catalogCfg)

			combos, err := cat.Resolve(catalog.Selection{
				Category:  category,
				ProductID: productID,
				PlanID:    planID,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(combos)
			}

			out := cmd.OutOrStdout()
			for _, combo := range combos {
				fmt.Fprintln(out, combo.String())
			}
			fmt.Fprintf(out, "\n%d combinations\n", len(combos))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "limit to one category")
	cmd.Flags().StringVar(&productID, "product", "", "limit to one product (requires --category)")
	cmd.Flags().StringVar(&planID, "plan", "", "limit to one plan (requires --product)")

	return cmd
}
