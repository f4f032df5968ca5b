package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// NewJobsCommand creates the jobs command.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List configured jobs and their last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			states, err := a.sync.JobStates()
			if err != nil {
				return err
			}
			return rootOpts.printer(cmd).Print(states, func(w io.Writer) { renderJobs(w, states) })
		},
	}
}
