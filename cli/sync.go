package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zackproser/portfolio-sub002/provider"
)

// NewSyncCmd creates the "sync" subcommand.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import a directory of manifests into the SQLite store",
		Args:  cobra.NoArgs,
		RunE:  runSync,
	}
	cmd.Flags().String("from", "", "Directory of <slug>.yaml manifests (default: manifests_dir)")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	from, _ := cmd.Flags().GetString("from")
	if strings.TrimSpace(from) == "" {
		from = e.cfg.ManifestsDir
	}

	dst, err := openSQLite(e.cfg.SQLitePath)
	if err != nil {
		return exitError(exitConfig, "opening sqlite store: %v", err)
	}
	defer dst.Close()

	n, err := provider.Copy(cmd.Context(), dst, provider.NewDir(from))
	if err != nil {
		return exitError(exitFailure, "syncing %s: %v", from, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s from %s into %s\n", n, pluralize("manifest", n), from, e.cfg.SQLitePath)
	return nil
}
