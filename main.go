// paiviz – conversational analytics over the Olist e-commerce dataset.
//
// Entry point: initializes the Cobra root command and launches the
// Bubble Tea chat TUI by default (no subcommand required).
package main

import (
	"os"

	"github.com/DachengChen/paiViz/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
