package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sheetsync/internal/config"
	"sheetsync/internal/etl"
)

// adhocOptions describe a single job given entirely by flags.
type adhocOptions struct {
	Source       string
	Path         string
	Sheet        string
	Table        string
	PrimaryKey   string
	Exclude      []string
	IgnorePrefix []string
	Mode         string
	NoAnnotate   bool
}

func (o *adhocOptions) set() bool { return o.Path != "" }

func (o *adhocOptions) job() config.JobConfig {
	typ := o.Source
	if typ == "" {
		typ = "xlsx_file"
		if strings.EqualFold(filepath.Ext(o.Path), ".csv") {
			typ = "csv_file"
		}
	}
	src := map[string]any{"type": typ, "path": o.Path}
	if o.Sheet != "" {
		src["sheet"] = o.Sheet
	}
	annotate := !o.NoAnnotate
	return config.JobConfig{
		Name:                 o.Table,
		Source:               src,
		Table:                o.Table,
		PrimaryKey:           o.PrimaryKey,
		ExcludedColumns:      o.Exclude,
		IgnoreColumnPrefixes: o.IgnorePrefix,
		Mode:                 o.Mode,
		Annotate:             &annotate,
	}
}

func (o *adhocOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.Path, "file", "", "ad-hoc job: source file (replaces the configured jobs)")
	f.StringVar(&o.Source, "source", "", "ad-hoc job: source type (default from the file extension)")
	f.StringVar(&o.Sheet, "sheet", "", "ad-hoc job: worksheet name (xlsx_file)")
	f.StringVar(&o.Table, "table", "", "ad-hoc job: destination table")
	f.StringVar(&o.PrimaryKey, "key", "", "ad-hoc job: primary key column")
	f.StringSliceVar(&o.Exclude, "exclude", nil, "ad-hoc job: columns left out of comparison and writes")
	f.StringSliceVar(&o.IgnorePrefix, "ignore-prefix", nil, "ad-hoc job: drop source columns with these prefixes")
	f.StringVar(&o.Mode, "mode", "", "ad-hoc job: diff or upsert")
	f.BoolVar(&o.NoAnnotate, "no-annotate", false, "ad-hoc job: do not write marker timestamps to the source")
}

// jobs returns the ad-hoc job list and its name, or nil when no ad-hoc
// job was given.
func (o *adhocOptions) jobs() ([]config.JobConfig, []string) {
	if !o.set() {
		return nil, nil
	}
	j := o.job()
	return []config.JobConfig{j}, []string{j.Name}
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		all   bool
		adhoc adhocOptions
	)
	cmd := &cobra.Command{
		Use:   "run [job...]",
		Short: "Run sync jobs once",
		Long: `Run one or more configured jobs, or an ad-hoc job given with --file.

Jobs run one after another. A failed job does not stop the next one, but
the command exits with status 1 if any job failed.`,
		Example: `  sheetsync run weather
  sheetsync run --all
  sheetsync run --file weather_data.xlsx --table weather_data --key city`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, names := adhoc.jobs()
			a, err := openApp(cmd.Context(), rootOpts, jobs)
			if err != nil {
				return err
			}
			defer a.Close()

			if names == nil {
				names, err = selectJobs(a.cfg, args, all)
				if err != nil {
					return err
				}
			}

			var (
				reports []*etl.RunReport
				failed  int
			)
			for _, name := range names {
				report, err := a.sync.RunJob(cmd.Context(), name, config.TriggerManual)
				if err != nil {
					failed++
				}
				if report != nil {
					reports = append(reports, report)
				}
				if cmd.Context().Err() != nil {
					break
				}
			}

			if err := rootOpts.printer(cmd).Print(reports, func(w io.Writer) { renderReports(w, reports) }); err != nil {
				return err
			}
			if failed > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d of %d job(s) failed", failed, len(names))}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "run every configured job")
	adhoc.bind(cmd)
	return cmd
}

// selectJobs resolves job arguments against the config.
func selectJobs(cfg *config.Config, args []string, all bool) ([]string, error) {
	if all {
		names := make([]string, len(cfg.Jobs))
		for i, j := range cfg.Jobs {
			names[i] = j.Name
		}
		if len(names) == 0 {
			return nil, commandError("no jobs configured", nil)
		}
		return names, nil
	}
	if len(args) == 0 {
		return nil, commandError("name at least one job, or use --all", nil)
	}
	for _, name := range args {
		if _, err := cfg.Job(name); err != nil {
			return nil, commandError("unknown job", err)
		}
	}
	return args, nil
}
