// Package cli implements the branchcheck command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"branchcheck/internal/app"
	"branchcheck/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == OutputJSON {
			_ = PrintJSON(os.Stdout, map[string]interface{}{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// rootOptions carries the persistent flags and the factories commands use.
type rootOptions struct {
	configPath string
	envFile    string
	output     string
	logLevel   string

	stderr io.Writer
	newApp func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app.App, error)
}

// loadConfig reads the env file, the config file, and the environment.
func (o *rootOptions) loadConfig() (*config.Config, *slog.Logger, error) {
	if o.envFile != "" {
		if err := config.LoadDotEnv(o.envFile); err != nil {
			return nil, nil, fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	logger := cfg.NewLogger(o.stderr)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	return cfg, logger, nil
}

// openApp wires the application. The caller must Close it.
func (o *rootOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, logger, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return o.newApp(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{stderr: os.Stderr, newApp: app.New}

	rootCmd := &cobra.Command{
		Use:           "branchcheck",
		Short:         "Branch vs production data validation",
		Long:          "Runs parameterized data-quality checks against a development branch and its production counterpart.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envOverride(cmd.Flags(), "output", "BRANCHCHECK_OUTPUT", &opts.output)
			envOverride(cmd.Flags(), "config", "BRANCHCHECK_CONFIG", &opts.configPath)
			return validateOutputFormat(opts.output)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Env file loaded before the environment is read")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", OutputTable, "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newBranchesCmd(opts))
	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newChecksCmd(opts))
	rootCmd.AddCommand(newCatalogCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// envOverride applies env to dst unless the flag was set on the command line.
func envOverride(fs *pflag.FlagSet, flag, env string, dst *string) {
	if fs.Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
