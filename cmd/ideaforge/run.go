package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"ideaforge/internal/domain"
	"ideaforge/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every input document, then synthesize the corpus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd, service.RunService.Run)
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process every input document without synthesis",
	Long: `Runs each input document through chunking, mining, validation and strategy
analysis. Documents whose record already exists in the output directory are
skipped, so an interrupted run can simply be started again.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd, service.RunService.Process)
	},
}

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Cluster the persisted records and write an architecture report per cluster",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd, service.RunService.Synthesize)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, processCmd, synthesizeCmd)
}

func execute(cmd *cobra.Command, fn func(service.RunService, context.Context) (*domain.RunSummary, error)) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	summary, err := fn(a.svc, ctx)
	if summary != nil {
		printSummary(cmd, summary)
	}
	if errors.Is(err, context.Canceled) {
		cmd.PrintErrln("Interrupted. Re-run to resume; finished documents are skipped.")
	}
	return err
}

func printSummary(cmd *cobra.Command, s *domain.RunSummary) {
	cmd.Printf("Run %s finished in %s\n", s.RunID, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if len(s.Documents) > 0 {
		cmd.Printf("Documents: %d persisted, %d failed, %d skipped\n",
			s.Count(domain.StatePersisted), s.Count(domain.StateFailed), s.Count(domain.StateSkipped))
		for _, d := range s.Documents {
			if d.State == domain.StateFailed {
				cmd.Printf("  FAILED %s: %s\n", d.Document, d.Error)
			}
		}
	}
	if s.RecordsLoaded > 0 {
		note := ""
		if s.ClusterFailed {
			note = " (clustering failed, whole corpus synthesized as one)"
		}
		cmd.Printf("Clusters: %d%s\n", len(s.Clusters), note)
		for _, r := range s.Reports {
			cmd.Printf("  report %s\n", r)
		}
	}
}
