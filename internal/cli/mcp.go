package cli

import (
	"github.com/spf13/cobra"

	mcpserver "sheetsync/internal/mcp"
)

// NewMCPCommand creates the mcp command.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	var allowRun bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the jobs to AI agents over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
configured jobs: list_jobs, list_sources, plan_job, list_run_history and,
with --allow-run, run_job. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := mcpserver.New(mcpserver.Deps{
				Sync:     a.sync,
				Version:  Version,
				AllowRun: allowRun,
			})
			return srv.ServeStdio()
		},
	}
	cmd.Flags().BoolVar(&allowRun, "allow-run", false, "enable the run_job tool")
	return cmd
}
