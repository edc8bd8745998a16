package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		branch string
		export string
		format string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured check for a branch",
		Long: "Compares each table of the branch with its production counterpart and prints the merged results.\n" +
			"A failure to connect to the warehouse or to discover the branch's buckets exits non-zero.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			rec, rs, err := a.Runs.Run(ctx, branch)
			if err != nil {
				if rec != nil {
					return fmt.Errorf("run %s: %w", rec.ID, err)
				}
				return err
			}

			var location string
			if export != "" || a.Config.Report.Sink != "" {
				location, err = a.Export(ctx, export, rec, rs, format)
				if err != nil {
					return fmt.Errorf("export run %s: %w", rec.ID, err)
				}
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == OutputJSON {
				body := map[string]interface{}{
					"run":     rec,
					"columns": rs.Columns,
					"results": rs.Records(),
				}
				if location != "" {
					body["report"] = location
				}
				return PrintJSON(out, body)
			}
			printResults(out, rs)
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), runSummary(rec, rs))
			if location != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", location)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Development branch id (required)")
	cmd.Flags().StringVar(&export, "export", "", "Report destination: a directory, s3://, gs://, or az:// URI")
	cmd.Flags().StringVar(&format, "format", "", "Report format (csv, json)")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}
