package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
	"sheetsync/internal/service"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Every run succeeded
	ExitFailure      = 1 // At least one run failed
	ExitCommandError = 2 // Bad flags, config or connection setup
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// commandError wraps err as a setup failure.
func commandError(message string, err error) *ExitError {
	return &ExitError{Code: ExitCommandError, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ── Printer ────────────────────────────────────────────────

// Printer writes a value as text, JSON or YAML.
type Printer struct {
	Format string
	Writer io.Writer
}

// Print writes v in the printer's format; text uses render.
func (p *Printer) Print(v any, render func(io.Writer)) error {
	switch p.Format {
	case "json":
		enc := json.NewEncoder(p.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		render(p.Writer)
		return nil
	}
}

// ── Text renderers ─────────────────────────────────────────

const maxListedKeys = 10

func renderReports(w io.Writer, reports []*etl.RunReport) {
	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		renderReport(w, r)
	}
}

func renderReport(w io.Writer, r *etl.RunReport) {
	verb := "run"
	if r.DryRun {
		verb = "plan"
	}
	fmt.Fprintf(w, "%s %s -> %s: %s\n", verb, r.Job, r.Table, r.Status)

	line := func(label, format string, args ...any) {
		fmt.Fprintf(w, "  %-10s %s\n", label, fmt.Sprintf(format, args...))
	}
	line("read", "%d rows", r.RowsRead)
	if r.Plan != nil {
		line("schema", "%s", schemaSummary(r.Plan))
	}
	line("inserted", "%d%s", r.Inserted, keyList(r.InsertedKeys))
	line("updated", "%d%s", r.Updated, keyList(r.UpdatedKeys))
	line("unchanged", "%d", r.Unchanged)
	if len(r.Failed) > 0 {
		line("failed", "%d%s", len(r.Failed), keyList(r.Failed))
	}
	if !r.DryRun && r.Status == "success" {
		line("annotated", "%d", r.Annotated)
	}
	line("duration", "%s", r.Duration.Round(time.Millisecond))
	if r.AnnotationError != "" {
		line("warning", "%s", r.AnnotationError)
	}
	if r.Error != "" {
		line("error", "%s", r.Error)
	}

	if r.DryRun && r.Diff != nil {
		renderDiff(w, r.Diff)
	}
}

func renderDiff(w io.Writer, d *etl.DiffResult) {
	if len(d.ToInsert) == 0 && len(d.ToUpdate) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, ins := range d.ToInsert {
		fmt.Fprintf(w, "  + %s (row %d)\n", ins.Key, ins.Row)
	}
	for _, upd := range d.ToUpdate {
		changes := make([]string, len(upd.Changes))
		for i, c := range upd.Changes {
			changes[i] = fmt.Sprintf("%s %s -> %s", c.Column, formatCell(c.Old), formatCell(c.New))
		}
		fmt.Fprintf(w, "  ~ %s (row %d): %s\n", upd.Key, upd.Row, strings.Join(changes, ", "))
	}
}

func schemaSummary(p *etl.SchemaPlan) string {
	switch {
	case p.CreateTable:
		return "create table (" + columnList(p.Columns) + ")"
	case len(p.AddColumns) > 0:
		return "add columns (" + columnList(p.AddColumns) + ")"
	default:
		return "no changes"
	}
}

func columnList(cols etl.ColumnList) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Name + " " + string(c.Type)
	}
	return strings.Join(parts, ", ")
}

func keyList(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	shown := keys
	more := ""
	if len(keys) > maxListedKeys {
		shown = keys[:maxListedKeys]
		more = fmt.Sprintf(", +%d more", len(keys)-maxListedKeys)
	}
	return " (" + strings.Join(shown, ", ") + more + ")"
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func renderHistory(w io.Writer, logs []domain.RunLog) {
	if len(logs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	fmt.Fprintf(w, "%-19s  %-12s %-10s %-7s %5s %5s %5s %5s  %s\n",
		"STARTED", "JOB", "TRIGGER", "STATUS", "INS", "UPD", "SAME", "FAIL", "ERROR")
	for _, l := range logs {
		fmt.Fprintf(w, "%-19s  %-12s %-10s %-7s %5d %5d %5d %5d  %s\n",
			l.StartedAt.UTC().Format(time.DateTime), l.Job, l.Trigger, l.Status,
			l.Inserted, l.Updated, l.Unchanged, l.Failed, l.Error)
	}
}

func renderJobs(w io.Writer, states []service.JobState) {
	if len(states) == 0 {
		fmt.Fprintln(w, "no jobs configured")
		return
	}
	fmt.Fprintf(w, "%-12s %-10s %-16s %-10s %s\n", "NAME", "SOURCE", "TABLE", "TRIGGER", "LAST RUN")
	for _, s := range states {
		last := "never"
		switch {
		case s.Running:
			last = "running"
		case !s.LastRunAt.IsZero():
			last = s.LastStatus + " at " + s.LastRunAt.UTC().Format(time.DateTime)
		}
		trigger := s.Trigger
		if s.Schedule != "" {
			trigger += " " + s.Schedule
		}
		fmt.Fprintf(w, "%-12s %-10s %-16s %-10s %s\n", s.Name, s.Source, s.Table, trigger, last)
	}
}

func renderSources(w io.Writer, specs []etl.SourceSpec) {
	for i, s := range specs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s  %s (%s)\n", s.Type, s.Label, strings.Join(s.Extensions, ", "))
		for _, f := range s.ConfigFields {
			req := ""
			if f.Required {
				req = " (required)"
			}
			def := ""
			if f.Default != "" {
				def = fmt.Sprintf(" [default %q]", f.Default)
			}
			fmt.Fprintf(w, "  %-10s %s%s%s\n", f.Key, f.Help, req, def)
		}
	}
}
