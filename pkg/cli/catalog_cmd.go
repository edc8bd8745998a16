package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"branchcheck/internal/app"
	"branchcheck/internal/catalog"
	"branchcheck/internal/checks"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with the check catalog",
	}
	cmd.AddCommand(newCatalogValidateCmd(opts))
	return cmd
}

func newCatalogValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check that every catalog row names a registered check",
		Long:  "Parses the catalog CSV and reports unknown check names without contacting storage or the warehouse.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cat *catalog.Catalog
				err error
			)
			if len(args) == 1 {
				cat, err = catalog.Load(args[0])
				if err == nil {
					err = checks.NewDefaultRegistry().ValidateCatalog(cat.Rows())
				}
			} else {
				cfg, _, cerr := opts.loadConfig()
				if cerr != nil {
					return cerr
				}
				_, cat, err = app.LoadChecks(cfg)
			}
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == OutputJSON {
				return PrintJSON(cmd.OutOrStdout(), map[string]interface{}{
					"valid":  true,
					"source": cat.Source(),
					"rows":   cat.Len(),
					"tables": len(cat.Tables()),
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Catalog %s is valid: %d rows covering %d tables.\n",
				cat.Source(), cat.Len(), len(cat.Tables()))
			return nil
		},
	}
}
