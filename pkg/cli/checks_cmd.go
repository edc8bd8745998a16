package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"branchcheck/internal/bucket"
	"branchcheck/internal/checks"
	"branchcheck/internal/domain"
	"branchcheck/internal/params"
)

func newChecksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checks",
		Short: "Inspect the registered checks",
	}
	cmd.AddCommand(newChecksListCmd())
	cmd.AddCommand(newChecksShowCmd())
	cmd.AddCommand(newChecksRenderCmd(opts))
	return cmd
}

func newChecksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered checks and the parameters they read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := checks.NewDefaultRegistry()
			type summary struct {
				Name       string   `json:"name"`
				Parameters []string `json:"parameters"`
			}
			var list []summary
			for _, name := range registry.Names() {
				keys, err := registry.RequiredParameters(name)
				if err != nil {
					return err
				}
				list = append(list, summary{Name: name, Parameters: keys})
			}
			if getOutputFormat(cmd) == OutputJSON {
				return PrintJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, 0, len(list))
			for _, s := range list {
				rows = append(rows, []string{s.Name, strings.Join(s.Parameters, ", ")})
			}
			PrintTable(cmd.OutOrStdout(), []string{"name", "parameters"}, rows)
			return nil
		},
	}
}

func newChecksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <check-name>",
		Short: "Print a check's query template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := checks.NewDefaultRegistry().Source(args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == OutputJSON {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{"name": args[0], "template": src})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(src))
			return nil
		},
	}
}

type renderedCheck struct {
	Check string `json:"check"`
	Line  int    `json:"line"`
	SQL   string `json:"sql,omitempty"`
	Error string `json:"error,omitempty"`
}

func newChecksRenderCmd(opts *rootOptions) *cobra.Command {
	var (
		branch string
		only   string
	)

	cmd := &cobra.Command{
		Use:   "render <dev-table-id>",
		Short: "Print the SQL a run would execute for one development table",
		Long: "Resolves the catalog rows that apply to the table and renders each check without executing it.\n" +
			"The table id has the form <bucket>.<table>, e.g. out.c-1191865-main.orders.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tableID := args[0]
			i := strings.LastIndexByte(tableID, '.')
			if i <= 0 || i == len(tableID)-1 {
				return domain.ErrValidation("table id %q must have the form <bucket>.<table>", tableID)
			}
			devBucket := tableID[:i]
			prodBucket, err := bucket.ResolveProductionBucket(devBucket, branch)
			if err != nil {
				return err
			}

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			defs := a.Catalog.FindChecks(prodBucket, tableID)
			resolver := params.NewResolver(a.Buckets, a.Logger)
			target := params.Target{Branch: branch, DevBucket: devBucket, ProdBucket: prodBucket, TableID: tableID}

			var out []renderedCheck
			for _, def := range defs {
				if only != "" && def.TestName != only {
					continue
				}
				rc := renderedCheck{Check: def.TestName, Line: def.Line}
				inst, err := resolver.Resolve(ctx, def, target)
				if err == nil {
					rc.SQL, err = a.Registry.Render(def.TestName, inst.Substitutions)
				}
				if err != nil {
					rc.Error = err.Error()
				}
				out = append(out, rc)
			}
			if len(out) == 0 {
				return domain.ErrNotFound("no checks configured for %s in %s", domain.TableName(tableID), prodBucket)
			}

			if getOutputFormat(cmd) == OutputJSON {
				return PrintJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			for _, rc := range out {
				_, _ = fmt.Fprintf(w, "-- %s (catalog line %d)\n", rc.Check, rc.Line)
				if rc.Error != "" {
					_, _ = fmt.Fprintf(w, "-- error: %s\n\n", rc.Error)
					continue
				}
				_, _ = fmt.Fprintf(w, "%s;\n\n", strings.TrimSpace(rc.SQL))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Development branch id (required)")
	cmd.Flags().StringVar(&only, "check", "", "Render only this check")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}
