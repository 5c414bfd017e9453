package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/DachengChen/paiViz/api"
	"github.com/spf13/cobra"
)

var (
	serveAddr        string
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the agent over HTTP: sessions are created and chatted with via
the JSON API, and Prometheus metrics are exposed on a separate listener.
Shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx, os.Stderr)
		if err != nil {
			return err
		}
		defer app.close()

		if serveAddr != "" {
			app.cfg.Server.Addr = serveAddr
		}
		if serveMetricsAddr != "" {
			app.cfg.Server.MetricsAddr = serveMetricsAddr
		}

		srv := api.NewServer(app.agent, app.cfg.Server, app.log)
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "metrics listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
