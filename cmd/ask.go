package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DachengChen/paiViz/tui"
	"github.com/spf13/cobra"
)

// askWidth is the render width for one-shot output.
const askWidth = 100

var askShowSQL bool

var askCmd = &cobra.Command{
	Use:   `ask "question"`,
	Short: "Answer a single question and exit",
	Long: `Runs one agent turn outside the TUI and prints the answer. The exit
code is non-zero when the turn fails, so it composes with scripts:

  paiviz ask "total revenue in 2017"
  paiviz ask --sql "top 5 categories by revenue"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := buildApp(ctx, os.Stderr)
		if err != nil {
			return err
		}
		defer app.close()

		question := strings.Join(args, " ")
		sess := app.agent.NewSession()
		turn, err := app.agent.Respond(ctx, sess, question)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, line := range tui.RenderTurn(turn, askWidth) {
			fmt.Fprintln(out, line)
		}
		if askShowSQL && turn.SQL != "" {
			fmt.Fprintln(out, turn.SQL)
		}

		if turn.Failed() {
			return fmt.Errorf("turn failed (%s/%s)", turn.Err.Stage, turn.Err.Kind)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askShowSQL, "sql", false, "also print the generated SQL")
	rootCmd.AddCommand(askCmd)
}
