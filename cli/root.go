// Package cli implements the factcheck command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zackproser/portfolio-sub002/config"
)

// NewRootCmd creates the factcheck command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "factcheck",
		Short: "Validate tool fact manifests",
		Long:  "factcheck validates tool fact manifests against their schemas and requires a provenance citation for every fact.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Config file (default ./factcheck.yaml, then ~/.factcheck/config.yaml)")
	flags.Bool("verbose", false, "Enable verbose/debug logging")
	flags.Bool("quiet", false, "Suppress all output except errors")
	flags.String("manifests-dir", config.DefaultManifestsDir, "Directory of <slug>.yaml manifests")
	flags.String("provider", config.ProviderDir, "Manifest source: dir | sqlite")
	flags.String("sqlite-path", config.DefaultSQLitePath, "SQLite database for the sqlite provider")
	flags.Int("concurrency", config.DefaultConcurrency, "Manifests validated at once")
	flags.String("otlp-endpoint", "", "OTLP/HTTP endpoint for span export")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("factcheck version %s\n", version))

	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewListCmd())
	root.AddCommand(NewCoverageCmd())
	root.AddCommand(NewWatchCmd())
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewSyncCmd())
	return root
}
