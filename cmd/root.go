// Package cmd contains all Cobra commands for paiviz.
//
// Design decision: the root command launches the chat TUI directly.
// Running `paiviz` with no arguments starts the interactive UI over the
// configured dataset; `ask` answers a single question and exits, and
// `serve` exposes the same agent over HTTP.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/DachengChen/paiViz/agent"
	"github.com/DachengChen/paiViz/ai"
	"github.com/DachengChen/paiViz/config"
	"github.com/DachengChen/paiViz/dataset"
	"github.com/DachengChen/paiViz/logging"
	"github.com/DachengChen/paiViz/tui"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "paiviz",
	Short: "Conversational analytics over the Olist e-commerce dataset",
	Long: `paiViz answers plain-language questions about the Olist Brazilian
e-commerce dataset: a completion service turns the question into a
query plan, the plan runs read-only against the local dataset, and the
result is drawn as a metric, bar, line, pie or table.

  • Full-screen chat TUI (default, no subcommand required)
  • paiviz ask "..." for one-shot answers
  • paiviz serve for the HTTP API

Questions stay in one conversation, so follow-ups like "only 2017"
refine the previous answer.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The TUI owns the terminal, so logs go to a file.
		app, err := buildApp(cmd.Context(), tuiLogWriter())
		if err != nil {
			return err
		}
		defer app.close()
		return tui.Start(app.agent)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// app bundles everything a command needs after startup.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	agent *agent.Agent
	close func()
}

// buildApp wires config → logger → dataset → provider → agent.
func buildApp(ctx context.Context, logW io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format, logW)

	ds, err := dataset.Open(ctx, cfg.Dataset, log)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}

	provider, err := ai.NewProvider(cfg.Provider, cfg.Agent.MaxTokens)
	if err != nil {
		_ = ds.Close()
		return nil, err
	}

	log.Info("agent ready",
		"backend", ds.Backend(),
		"provider", provider.Name(),
		"tables", len(ds.Schema().Tables))

	return &app{
		cfg:   cfg,
		log:   log,
		agent: agent.New(provider, ds, cfg.Agent, log),
		close: func() { _ = ds.Close() },
	}, nil
}

// tuiLogWriter opens ~/.paiviz/logs/app.log, falling back to discarding
// logs rather than corrupting the alternate screen.
func tuiLogWriter() io.Writer {
	home, err := os.UserHomeDir()
	if err != nil {
		return io.Discard
	}
	dir := filepath.Join(home, ".paiviz", "logs")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return io.Discard
	}
	f, err := os.OpenFile(filepath.Join(dir, "app.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return io.Discard
	}
	return f
}
