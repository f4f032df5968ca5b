package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	var adhoc adhocOptions
	cmd := &cobra.Command{
		Use:   "plan [job]",
		Short: "Show what a run would change, without writing",
		Long: `Compute the schema changes and the row diff of a job without touching
the destination or the source file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, names := adhoc.jobs()
			a, err := openApp(cmd.Context(), rootOpts, jobs)
			if err != nil {
				return err
			}
			defer a.Close()

			if names == nil {
				if names, err = selectJobs(a.cfg, args, false); err != nil {
					return err
				}
			}

			report, runErr := a.sync.PlanJob(cmd.Context(), names[0])
			if report != nil {
				if err := rootOpts.printer(cmd).Print(report, func(w io.Writer) { renderReport(w, report) }); err != nil {
					return err
				}
			}
			if runErr != nil {
				return &ExitError{Code: ExitFailure, Message: "plan failed", Err: runErr}
			}
			return nil
		},
	}
	adhoc.bind(cmd)
	return cmd
}
