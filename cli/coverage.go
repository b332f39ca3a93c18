package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zackproser/portfolio-sub002/coverage"
	"github.com/zackproser/portfolio-sub002/manifest"
)

// NewCoverageCmd creates the "coverage" subcommand.
func NewCoverageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coverage <slug>",
		Short: "Show which citation covers each fact of a manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  runCoverage,
	}
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

func runCoverage(cmd *cobra.Command, args []string) error {
	slug := args[0]
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	res, err := e.loader.Coverage(cmd.Context(), slug)
	if err != nil {
		var pe *manifest.ProviderError
		if errors.As(err, &pe) && pe.NotFound {
			return exitError(exitNotFound, "%v", err)
		}
		if manifest.KindOf(err) == manifest.KindOther || manifest.KindOf(err) == manifest.KindProvider {
			return exitError(exitFailure, "%v", err)
		}
		return exitError(exitValidation, "%v", err)
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		printCoverageText(out, res)
	}
	if !res.Covered() {
		return exitError(exitValidation, "%d of %d facts lack provenance", len(res.Uncovered), len(res.Leaves))
	}
	return nil
}

func printCoverageText(w io.Writer, res coverage.Result) {
	width := 0
	for _, leaf := range res.Leaves {
		width = max(width, len(leaf.Path))
	}
	for _, leaf := range res.Leaves {
		if leaf.Rule == coverage.RuleNone {
			fmt.Fprintf(w, "%-*s  MISSING (line %d)\n", width, leaf.Path, leaf.Line)
			continue
		}
		fmt.Fprintf(w, "%-*s  %-14s  %s\n", width, leaf.Path, leaf.Rule, leaf.Citation)
	}
	for _, orphan := range res.Orphans {
		fmt.Fprintf(w, "orphan citation: %s\n", orphan)
	}
	covered := len(res.Leaves) - len(res.Uncovered)
	fmt.Fprintf(w, "\n%d of %d %s covered\n", covered, len(res.Leaves), pluralize("fact", len(res.Leaves)))
}
