package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewListCmd creates the "list" subcommand.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List manifest slugs",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().String("category", "", "Only list this category")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	category, err := categoryFlag(cmd)
	if err != nil {
		return err
	}
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	slugs, err := e.provider.List(cmd.Context(), category)
	if err != nil {
		return exitError(exitFailure, "listing manifests: %v", err)
	}
	out := cmd.OutOrStdout()
	for _, slug := range slugs {
		fmt.Fprintln(out, slug)
	}
	return nil
}
