package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zackproser/portfolio-sub002/audit"
	"github.com/zackproser/portfolio-sub002/manifest"
	factotel "github.com/zackproser/portfolio-sub002/otel"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [slug...]",
		Short: "Validate manifests (all of them when no slug is given)",
		RunE:  runValidate,
	}

	cmd.Flags().String("category", "", "Only validate this category when no slug is given")
	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("fail-fast", false, "Report only the first uncovered fact per manifest")
	cmd.Flags().Bool("record", false, "Save the report to the audit history")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	category, err := categoryFlag(cmd)
	if err != nil {
		return err
	}
	record, _ := cmd.Flags().GetBool("record")

	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	runner := e.runner()
	report, err := factotel.TraceAudit(ctx, e.tracer, func(ctx context.Context) (*audit.Report, error) {
		if len(args) > 0 {
			return runner.RunSlugs(ctx, category, args)
		}
		return runner.Run(ctx, category)
	})
	if err != nil {
		return exitError(exitFailure, "validation aborted: %v", err)
	}
	e.metrics.Record(ctx, report)

	if record {
		store, err := e.history()
		if err != nil {
			return exitError(exitFailure, "opening audit history: %v", err)
		}
		if err := store.Save(ctx, report); err != nil {
			return exitError(exitFailure, "recording audit: %v", err)
		}
		e.logger.Debug("audit recorded", zap.String("run_id", report.RunID))
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		printReportText(out, report)
	}
	return reportExit(report)
}

// reportExit maps a report to the process exit code: not found when every
// failure is a missing manifest, validation failure otherwise.
func reportExit(report *audit.Report) error {
	failed := report.Failed()
	if len(failed) == 0 {
		return nil
	}
	missing := 0
	for _, res := range failed {
		if res.NotFound {
			missing++
		}
	}
	if missing == len(failed) {
		return exitError(exitNotFound, "%d %s not found", missing, pluralize("manifest", missing))
	}
	return exitError(exitValidation, "validation failed: %s", report.Counts().Summary())
}

func printReportText(w io.Writer, report *audit.Report) {
	for _, res := range report.Results {
		if res.OK() {
			fmt.Fprintf(w, "ok    %s (%s, %d %s)\n", res.Slug, res.Category, res.Facts, pluralize("fact", res.Facts))
			continue
		}
		fmt.Fprintf(w, "FAIL  %s [%s]\n", res.Slug, res.Kind)
		switch {
		case len(res.Issues) > 0:
			for _, issue := range res.Issues {
				fmt.Fprintf(w, "      %s\n", issue)
			}
		case len(res.Missing) > 0:
			for _, m := range res.Missing {
				if m.Line > 0 {
					fmt.Fprintf(w, "      missing provenance: %s (line %d)\n", m.Path, m.Line)
				} else {
					fmt.Fprintf(w, "      missing provenance: %s\n", m.Path)
				}
			}
		default:
			fmt.Fprintf(w, "      %s\n", res.Error)
		}
	}

	counts := report.Counts()
	fmt.Fprintf(w, "\n%d %s: %s\n", counts.Total, pluralize("manifest", counts.Total), counts.Summary())
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text", "json":
		return format, nil
	default:
		return "", exitError(exitFailure, "unknown format %q: want text or json", format)
	}
}

func categoryFlag(cmd *cobra.Command) (manifest.Category, error) {
	raw, _ := cmd.Flags().GetString("category")
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	category, err := manifest.ParseCategory(raw)
	if err != nil {
		return "", exitError(exitFailure, "%v", err)
	}
	return category, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing json: %w", err)
	}
	return nil
}

// pluralize returns the singular or plural form of a word based on count.
func pluralize(word string, count int) string {
	if count == 1 {
		return word
	}
	return word + "s"
}
