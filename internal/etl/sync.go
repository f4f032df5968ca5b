package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sheetsync/internal/logging"
)

// ── SyncJob ────────────────────────────────────────────────
// Orchestrates: source read → schema reconcile → diff → apply → annotate.
//
// Pattern: Airbyte sync / Singer tap→target pipeline.

// DefaultAuditColumn is the executor-owned last-write timestamp column.
const DefaultAuditColumn = "updated_timestamp"

// SyncJob holds the configuration for a single sync.
type SyncJob struct {
	Name                 string       `json:"name" yaml:"name"`
	SourceType           string       `json:"sourceType" yaml:"source_type"`
	SourceCfg            SourceConfig `json:"sourceConfig" yaml:"source_config"`
	Table                string       `json:"table" yaml:"table"`
	PrimaryKey           string       `json:"primaryKey" yaml:"primary_key"`
	ExcludedColumns      []string     `json:"excludedColumns,omitempty" yaml:"excluded_columns,omitempty"`
	IgnoreColumnPrefixes []string     `json:"ignoreColumnPrefixes,omitempty" yaml:"ignore_column_prefixes,omitempty"`
	AuditColumn          string       `json:"auditColumn" yaml:"audit_column"`
	MarkerColumn         string       `json:"markerColumn" yaml:"marker_column"`
	Mode                 SyncMode     `json:"mode" yaml:"mode"`
	Annotate             bool         `json:"annotate" yaml:"annotate"`
	WriteRetries         int          `json:"writeRetries" yaml:"write_retries"`
	TriggerType          string       `json:"triggerType" yaml:"trigger"` // "manual" | "schedule" | "file_watch"
	Schedule             string       `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// normalized returns a copy with defaults filled and names normalized.
func (j *SyncJob) normalized() *SyncJob {
	n := *j
	n.Table = NormalizeColumnName(j.Table)
	n.PrimaryKey = NormalizeColumnName(j.PrimaryKey)
	n.ExcludedColumns = make([]string, len(j.ExcludedColumns))
	for i, c := range j.ExcludedColumns {
		n.ExcludedColumns[i] = NormalizeColumnName(c)
	}
	if n.AuditColumn == "" {
		n.AuditColumn = DefaultAuditColumn
	}
	n.AuditColumn = NormalizeColumnName(n.AuditColumn)
	if n.MarkerColumn == "" {
		n.MarkerColumn = DefaultMarkerColumn
	}
	if n.Mode == "" {
		n.Mode = SyncDiff
	}
	if n.WriteRetries <= 0 {
		n.WriteRetries = DefaultWriteRetries
	}
	return &n
}

func (j *SyncJob) validate() error {
	if err := ValidateIdentifier(j.Table); err != nil {
		return &SchemaError{Column: j.Table, Message: "invalid table name"}
	}
	if j.PrimaryKey == "" {
		return &SchemaError{Message: "primary key not set"}
	}
	if isExcluded(j.PrimaryKey, j.ExcludedColumns) {
		return &SchemaError{Column: j.PrimaryKey, Message: "primary key cannot be excluded"}
	}
	if j.PrimaryKey == j.AuditColumn {
		return &SchemaError{Column: j.PrimaryKey, Message: "primary key cannot be the audit column"}
	}
	if err := ValidateIdentifier(j.AuditColumn); err != nil {
		return err
	}
	switch j.Mode {
	case SyncDiff, SyncUpsert:
	default:
		return fmt.Errorf("unknown sync mode: %q", j.Mode)
	}
	return nil
}

// RunReport is the outcome of one run.
type RunReport struct {
	RunID      string        `json:"runId" yaml:"run_id"`
	Job        string        `json:"job" yaml:"job"`
	Table      string        `json:"table" yaml:"table"`
	DryRun     bool          `json:"dryRun" yaml:"dry_run"`
	Status     string        `json:"status" yaml:"status"` // "success" | "error"
	StartedAt  time.Time     `json:"startedAt" yaml:"started_at"`
	FinishedAt time.Time     `json:"finishedAt" yaml:"finished_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`

	RowsRead  int `json:"rowsRead" yaml:"rows_read"`
	Inserted  int `json:"inserted" yaml:"inserted"`
	Updated   int `json:"updated" yaml:"updated"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`

	Plan *SchemaPlan `json:"plan,omitempty" yaml:"plan,omitempty"`
	Diff *DiffResult `json:"diff,omitempty" yaml:"diff,omitempty"` // dry runs only

	InsertedKeys []string `json:"insertedKeys,omitempty" yaml:"inserted_keys,omitempty"`
	UpdatedKeys  []string `json:"updatedKeys,omitempty" yaml:"updated_keys,omitempty"`
	// Failed lists keys whose update matched no destination row.
	Failed []string `json:"failed,omitempty" yaml:"failed,omitempty"`

	Annotated       int    `json:"annotated" yaml:"annotated"`
	AnnotationError string `json:"annotationError,omitempty" yaml:"annotation_error,omitempty"`
	Error           string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs sync jobs against one destination store.
type Engine struct {
	Store Store

	// Now supplies the run timestamp; nil means time.Now.
	Now func() time.Time
}

// Run executes a job end to end and returns its report. The report is
// returned on failure too, with Status "error" and Error set.
//
// Precondition: nothing else writes the destination table while a run is in
// progress. The snapshot is read outside the write transaction.
func (e *Engine) Run(ctx context.Context, job *SyncJob) (*RunReport, error) {
	return e.run(ctx, job, false)
}

// Plan computes the schema plan and diff without writing anything.
func (e *Engine) Plan(ctx context.Context, job *SyncJob) (*RunReport, error) {
	return e.run(ctx, job, true)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) run(ctx context.Context, in *SyncJob, dryRun bool) (*RunReport, error) {
	job := in.normalized()
	report := &RunReport{
		RunID:     uuid.New().String(),
		Job:       job.Name,
		Table:     job.Table,
		DryRun:    dryRun,
		StartedAt: e.now(),
	}
	ctx = logging.WithJob(ctx, job.Name)
	log := logging.FromContext(ctx).With().Str("table", job.Table).Logger()

	fail := func(err error) (*RunReport, error) {
		report.Status = "error"
		report.Error = err.Error()
		report.FinishedAt = e.now()
		report.Duration = report.FinishedAt.Sub(report.StartedAt)
		log.Error().Err(err).Msg("sync failed")
		return report, err
	}

	if err := job.validate(); err != nil {
		return fail(err)
	}

	// 1. Connect.
	if err := e.Store.Ping(ctx); err != nil {
		return fail(&ConnectionError{Driver: e.Store.Driver(), Err: err})
	}

	// 2. Read source.
	log.Debug().Str("phase", "read").Str("source", job.SourceType).Msg("reading source")
	src, err := GetSource(job.SourceType)
	if err != nil {
		return fail(err)
	}
	filter := ColumnFilter{
		IgnorePrefixes: job.IgnoreColumnPrefixes,
		Drop:           []string{job.MarkerColumn, job.AuditColumn},
	}
	source, err := ReadRecordSet(ctx, src, job.SourceCfg, job.PrimaryKey, filter)
	if err != nil {
		return fail(err)
	}
	report.RowsRead = source.Len()
	tracked := Without(source.Columns, job.ExcludedColumns)

	// 3. Describe + reconcile.
	log.Debug().Str("phase", "reconcile").Msg("describing destination")
	info, err := e.Store.Describe(ctx, job.Table)
	if err != nil {
		return fail(&ConnectionError{Driver: e.Store.Driver(), Err: fmt.Errorf("describe %s: %w", job.Table, err)})
	}
	wanted := append(ColumnList{}, tracked...)
	wanted = append(wanted, Column{Name: job.AuditColumn, Type: TypeText})
	plan, err := Reconcile(info.Exists, wanted, info.Columns, job.PrimaryKey)
	if err != nil {
		return fail(err)
	}
	report.Plan = plan

	// 4. Snapshot + diff.
	log.Debug().Str("phase", "diff").Msg("reading destination snapshot")
	dest, err := LoadSnapshot(ctx, e.Store, job.Table, info, tracked, job.PrimaryKey)
	if err != nil {
		return fail(err)
	}
	diff, err := Diff(source, dest, job.PrimaryKey, job.ExcludedColumns)
	if err != nil {
		return fail(err)
	}
	report.Inserted = len(diff.ToInsert)
	report.Updated = len(diff.ToUpdate)
	report.Unchanged = len(diff.Unchanged)

	if dryRun {
		report.Diff = diff
		report.Status = "success"
		report.FinishedAt = e.now()
		report.Duration = report.FinishedAt.Sub(report.StartedAt)
		return report, nil
	}

	// 5. Apply.
	if !plan.Empty() || !diff.Empty() {
		log.Debug().Str("phase", "apply").
			Int("insert", len(diff.ToInsert)).
			Int("update", len(diff.ToUpdate)).
			Msg("applying changes")
		exec := &Executor{
			Store:       e.Store,
			Table:       job.Table,
			AuditColumn: job.AuditColumn,
			Mode:        job.Mode,
			Retries:     job.WriteRetries,
			At:          report.StartedAt,
			Existing:    info.Columns,
		}
		applied, err := exec.Apply(ctx, plan, diff, job.PrimaryKey)
		if err != nil {
			report.Inserted, report.Updated = 0, 0
			return fail(err)
		}
		report.InsertedKeys = applied.Inserted
		report.UpdatedKeys = applied.Updated
		report.Failed = applied.Missing
		report.Inserted = len(applied.Inserted)
		report.Updated = len(applied.Updated)
	}

	// 6. Annotate (best effort).
	if job.Annotate {
		e.annotate(ctx, src, job, report)
	}

	report.Status = "success"
	report.FinishedAt = e.now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	log.Info().
		Int("inserted", report.Inserted).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("failed", len(report.Failed)).
		Dur("duration", report.Duration).
		Msg("sync completed")
	return report, nil
}

func (e *Engine) annotate(ctx context.Context, src Source, job *SyncJob, report *RunReport) {
	keys := append(append([]string{}, report.InsertedKeys...), report.UpdatedKeys...)
	if len(keys) == 0 {
		return
	}
	log := logging.FromContext(ctx)
	a, ok := src.(Annotator)
	if !ok {
		log.Warn().Str("source", job.SourceType).Msg("source does not support annotation")
		return
	}
	n, err := Annotate(ctx, a, job.SourceCfg, job.PrimaryKey, keys, job.MarkerColumn, e.now())
	report.Annotated = n
	if err != nil {
		report.AnnotationError = err.Error()
		log.Warn().Err(err).Msg("source annotation failed")
	}
}
