package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/engine"
)

func newRunCommand() *cobra.Command {
	var (
		owner         string
		category      string
		productID     string
		planID        string
		targetEnv     string
		adminToken    string
		customerToken string
		pollInterval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a sanity run and wait for it to finish",
		Long: `Resolve the selection against the catalog, execute every matching
combination through the 7-step flow on the target and staging environments,
and print the result.

Tokens for the admin and customer policy steps can be passed via flags or the
ADMIN_TOKEN and CUSTOMER_TOKEN environment variables. Steps whose token is
missing are marked can_not_proceed without failing the combination.`,
		Example: `  # Run every combination in the catalog
  probe run --owner alice

  # Run one plan with portal tokens
  ADMIN_TOKEN=... CUSTOMER_TOKEN=... \
    probe run --owner alice --category MV4 --product TOKIO_MARINE --plan COMPREHENSIVE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			if targetEnv != "" {
				cfg.TargetEnvironment = targetEnv
			}

			a, err := buildApp(cfg, cmd.Root().Version)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.telemetry.Shutdown(ctx)

			if adminToken == "" {
				adminToken = os.Getenv("ADMIN_TOKEN")
			}
			if customerToken == "" {
				customerToken = os.Getenv("CUSTOMER_TOKEN")
			}

			run, err := a.orchestrator.StartRun(ctx, engine.StartRunRequest{
				Owner: owner,
				Selection: catalog.Selection{
					Category:  category,
					ProductID: productID,
					PlanID:    planID,
				},
				TargetEnvironment: cfg.TargetEnvironment,
				Tokens: engine.Tokens{
					Admin:    adminToken,
					Customer: customerToken,
				},
			})
			if err != nil {
				return err
			}

			logger := a.telemetry.Logger.WithRunID(run.ID)
			logger.WithField("combinations", len(run.Combinations)).Info("run started")

			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(pollInterval):
				}

				run, err = a.orchestrator.GetRun(ctx, run.ID)
				if err != nil {
					return err
				}
				if run.Status.IsTerminal() {
					break
				}
				logger.WithFields(map[string]interface{}{
					"completed": run.Summary.Completed,
					"total":     run.Summary.Total,
				}).Info("run in progress")
			}

			return printRunResult(cmd, a, run)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "run owner (required, part of every execution id)")
	cmd.Flags().StringVar(&category, "category", "", "limit to one category")
	cmd.Flags().StringVar(&productID, "product", "", "limit to one product (requires --category)")
	cmd.Flags().StringVar(&planID, "plan", "", "limit to one plan (requires --product)")
	cmd.Flags().StringVar(&targetEnv, "target-env", "", "environment playing the target role")
	cmd.Flags().StringVar(&adminToken, "admin-token", "", "admin portal token")
	cmd.Flags().StringVar(&customerToken, "customer-token", "", "customer portal token")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 500*time.Millisecond, "status poll interval")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func printRunResult(cmd *cobra.Command, a *app, run *engine.Run) error {
	results, err := a.orchestrator.ListCombinations(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"run":          run,
			"combinations": results,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %s\n", run.ID, run.Status)
	fmt.Fprintf(out, "Combinations: %d total, %d succeeded, %d failed\n\n",
		run.Summary.Total, run.Summary.Succeeded, run.Summary.Failed)

	for _, result := range results {
		fmt.Fprintf(out, "  %-40s %s\n", result.Combination.String(), result.Status)
		if result.Comparison != nil && result.Comparison.Summary.Critical > 0 {
			fmt.Fprintf(out, "    %d critical field differences\n", result.Comparison.Summary.Critical)
		}
	}

	if run.Status == engine.RunStatusFailed {
		return fmt.Errorf("%d of %d combinations failed", run.Summary.Failed, run.Summary.Total)
	}
	return nil
}
