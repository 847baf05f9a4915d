// Command ideaforge mines product ideas out of conversation transcripts and
// synthesizes them into per-concept architecture reports.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ideaforge",
	Short: "Mine ideas from transcripts and synthesize them into reports",
	Long: `ideaforge reads transcripts from the input directory, extracts the ideas in
them, evaluates each document technically and commercially, then groups the
corpus by concept and writes an architecture report per group.

Configuration is read from IDEAFORGE_* environment variables, optionally
layered over the file named by IDEAFORGE_CONFIG_FILE.`,
	SilenceUsage: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
