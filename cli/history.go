package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zackproser/portfolio-sub002/audit"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded audits, or one audit in full",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 20, "Number of runs to show")
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	store, err := e.history()
	if err != nil {
		return exitError(exitFailure, "opening audit history: %v", err)
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		report, err := store.Get(ctx, args[0])
		if errors.Is(err, audit.ErrRunNotFound) {
			return exitError(exitNotFound, "%v", err)
		}
		if err != nil {
			return exitError(exitFailure, "%v", err)
		}
		if format == "json" {
			return writeJSON(out, report)
		}
		printReportText(out, report)
		return nil
	}

	runs, err := store.List(ctx, limit)
	if err != nil {
		return exitError(exitFailure, "%v", err)
	}
	if format == "json" {
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No recorded audits.")
		return nil
	}
	for _, run := range runs {
		category := run.Category
		if category == "" {
			category = "all"
		}
		fmt.Fprintf(out, "%s  %s  %-16s %d/%d valid  (%s)\n",
			run.RunID,
			run.StartedAt.UTC().Format(time.RFC3339),
			category,
			run.Total-run.Invalid,
			run.Total,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
		)
	}
	return nil
}
