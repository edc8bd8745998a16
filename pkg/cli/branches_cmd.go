package cli

import (
	"github.com/spf13/cobra"
)

func newBranchesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "branches",
		Short: "List development branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			branches, err := a.Storage.ListBranches(cmd.Context())
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == OutputJSON {
				return PrintJSON(cmd.OutOrStdout(), map[string]interface{}{"branches": branches})
			}
			rows := make([][]string, 0, len(branches))
			for _, b := range branches {
				rows = append(rows, []string{b.ID, b.Name})
			}
			PrintTable(cmd.OutOrStdout(), []string{"id", "name"}, rows)
			return nil
		},
	}
}
