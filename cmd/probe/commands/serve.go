package commands

import (
	"github.com/spf13/cobra"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/server"
)

func newServeCommand() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP polling API",
		Long: `Start the HTTP server exposing sessions, run start and status,
progress snapshots, per-step captures with comparison, catalog browsing,
health, and Prometheus metrics.

The hierarchy config is watched for changes and reloaded without restart;
a broken edit keeps the previous catalog.`,
		Example: `  # Serve with defaults
  probe serve

  # Custom config and bind address
  probe serve --config ./probe.yaml --listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAppConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			a, err := buildApp(cfg, cmd.Root().Version)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.telemetry.Shutdown(ctx)

			watcher := catalog.NewWatcher(a.telemetry.Logger, catalog.NewLoader(a.telemetry.Logger), a.catalog)
			if err := watcher.Watch(ctx, cfg.CatalogPath); err != nil {
				a.telemetry.Logger.WithError(err).Warn("catalog hot reload unavailable")
			} else {
				defer watcher.Stop()
			}

			srv := server.New(server.Config{ListenAddr: cfg.ListenAddr},
				a.orchestrator, a.sessions, a.catalog, a.telemetry)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP bind address (overrides config)")

	return cmd
}
