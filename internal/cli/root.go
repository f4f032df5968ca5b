// Package cli implements the sheetsync command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"sheetsync/internal/logging"
)

// Version is set at build time with -ldflags "-X sheetsync/internal/cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Format     string // "text" | "json" | "yaml"
	LogLevel   string
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the sheetsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "sheetsync",
		Short:   "Keep database tables in step with spreadsheets",
		Version: Version,
		Long: `sheetsync reconciles a database table with a CSV or XLSX file.

Each run adds new columns to the table, inserts new rows, updates changed
rows and leaves everything else untouched. Synced rows are stamped with a
marker timestamp in the source file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return commandError(fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			cfg := logging.DefaultConfig()
			applyLogFlags(cfg, opts)
			logging.Configure(cfg)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (default ./sheetsync.yaml or ~/.config/sheetsync/sheetsync.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Format, "format", "o", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSourcesCommand(opts))
	cmd.AddCommand(NewMCPCommand(opts))

	return cmd
}

func applyLogFlags(cfg *logging.Config, opts *RootOptions) {
	if opts.Verbose {
		cfg.Level = "debug"
	}
	if opts.LogLevel != "" {
		cfg.Level = opts.LogLevel
	}
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return GetExitCode(err)
}

func (o *RootOptions) printer(cmd *cobra.Command) *Printer {
	return &Printer{Format: o.Format, Writer: cmd.OutOrStdout()}
}
