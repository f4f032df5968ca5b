package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit int
		prune time.Duration
	)
	cmd := &cobra.Command{
		Use:   "history [job]",
		Short: "Show recent runs",
		Long: `Show recorded runs, newest first. Without a job, runs of every job are
listed. --prune deletes runs older than the given age instead.`,
		Example: `  sheetsync history weather --limit 5
  sheetsync history --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if prune > 0 {
				n, err := a.sync.PruneHistory(time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d run(s)\n", n)
				return nil
			}

			job := ""
			if len(args) == 1 {
				job = args[0]
			}
			logs, err := a.sync.ListRunLogs(job, limit)
			if err != nil {
				return commandError("list history", err)
			}
			return rootOpts.printer(cmd).Print(logs, func(w io.Writer) { renderHistory(w, logs) })
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs older than this age (e.g. 720h)")
	return cmd
}
