package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"sheetsync/internal/config"
	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
	"sheetsync/internal/logging"
	"sheetsync/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Sync Service: runs configured jobs and owns their triggers
// ─────────────────────────────────────────────────────────────

// TriggerMCP marks runs started through the MCP server.
const TriggerMCP = "mcp"

// DefaultDebounce is how long a watched file must stay quiet before its
// job runs.
const DefaultDebounce = 500 * time.Millisecond

// ErrJobRunning is returned when a job is started while it is already running.
var ErrJobRunning = errors.New("job is already running")

// HistoryStore persists run logs and the latest status per job.
type HistoryStore interface {
	domain.RunLogStore
	UpdateJobStatus(job, status, errMsg string) error
	GetJobStatus(job string) (*storage.JobStatus, error)
}

// Options configures a SyncService.
type Options struct {
	Engine     *etl.Engine
	Jobs       []config.JobConfig
	History    HistoryStore // optional
	Emitter    EventEmitter // optional
	RunTimeout time.Duration
	Debounce   time.Duration
}

// SyncService runs sync jobs by name, records their history and drives
// the schedule and file_watch triggers.
type SyncService struct {
	engine      *etl.Engine
	jobs        []config.JobConfig
	history     HistoryStore
	emitter     EventEmitter
	timeout     time.Duration
	debounce    time.Duration
	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewSyncService creates a SyncService ready for use.
func NewSyncService(opts Options) *SyncService {
	s := &SyncService{
		engine:   opts.Engine,
		jobs:     opts.Jobs,
		history:  opts.History,
		emitter:  opts.Emitter,
		timeout:  opts.RunTimeout,
		debounce: opts.Debounce,
	}
	if s.emitter == nil {
		s.emitter = MultiEmitter{}
	}
	if s.timeout <= 0 {
		s.timeout = config.DefaultRunTimeout
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	return s
}

// ── Jobs ───────────────────────────────────────────────────

// ListJobs returns the configured jobs in configuration order.
func (s *SyncService) ListJobs() []config.JobConfig {
	return s.jobs
}

// Job returns the configured job with the given name.
func (s *SyncService) Job(name string) (*config.JobConfig, error) {
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			return &s.jobs[i], nil
		}
	}
	return nil, fmt.Errorf("job %q not found", name)
}

// JobState is a job with its latest recorded outcome.
type JobState struct {
	Name       string    `json:"name" yaml:"name"`
	Source     string    `json:"source" yaml:"source"`
	Path       string    `json:"path" yaml:"path"`
	Table      string    `json:"table" yaml:"table"`
	PrimaryKey string    `json:"primaryKey" yaml:"primary_key"`
	Trigger    string    `json:"trigger" yaml:"trigger"`
	Schedule   string    `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Running    bool      `json:"running" yaml:"running"`
	LastRunAt  time.Time `json:"lastRunAt,omitempty" yaml:"last_run_at,omitempty"`
	LastStatus string    `json:"lastStatus,omitempty" yaml:"last_status,omitempty"`
	LastError  string    `json:"lastError,omitempty" yaml:"last_error,omitempty"`
}

// JobStates lists every job with its last status, sorted by name.
func (s *SyncService) JobStates() ([]JobState, error) {
	running := make(map[string]bool)
	for _, j := range s.runningJobs.Running() {
		running[j] = true
	}

	out := make([]JobState, 0, len(s.jobs))
	for i := range s.jobs {
		j := s.jobs[i].SyncJob()
		st := JobState{
			Name:       j.Name,
			Source:     j.SourceType,
			Path:       s.jobs[i].SourcePath(),
			Table:      j.Table,
			PrimaryKey: j.PrimaryKey,
			Trigger:    j.TriggerType,
			Schedule:   j.Schedule,
			Running:    running[j.Name],
		}
		if s.history != nil {
			status, err := s.history.GetJobStatus(j.Name)
			if err != nil {
				return nil, fmt.Errorf("job status %s: %w", j.Name, err)
			}
			if status != nil {
				st.LastRunAt = status.LastRunAt
				st.LastStatus = status.LastStatus
				st.LastError = status.LastError
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// ListSources returns the available source descriptors.
func (s *SyncService) ListSources() []etl.SourceSpec {
	return etl.ListSources()
}

// ── Run ────────────────────────────────────────────────────

// RunJob runs the named job once and records the outcome. A job that is
// already running is refused with ErrJobRunning. The report is returned
// on failure too.
func (s *SyncService) RunJob(ctx context.Context, name, trigger string) (*etl.RunReport, error) {
	jc, err := s.Job(name)
	if err != nil {
		return nil, err
	}
	if trigger == "" {
		trigger = config.TriggerManual
	}

	if !s.runningJobs.TryLock(name) {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer s.runningJobs.Unlock(name)

	ctx = logging.WithJob(ctx, name)
	s.setStatus(ctx, name, "running", "")
	s.emitter.Emit(ctx, EventSyncStarted, SyncEvent{Job: name, Trigger: trigger})

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, runErr := s.engine.Run(runCtx, jc.SyncJob())
	s.record(ctx, trigger, report, runErr)

	ev := SyncEvent{Job: name, Trigger: trigger, Report: report}
	if runErr != nil {
		ev.Error = runErr.Error()
		s.emitter.Emit(ctx, EventSyncFailed, ev)
	} else {
		s.emitter.Emit(ctx, EventSyncCompleted, ev)
	}
	return report, runErr
}

// PlanJob computes the named job's schema plan and diff without writing.
// Plans are not recorded in the run history.
func (s *SyncService) PlanJob(ctx context.Context, name string) (*etl.RunReport, error) {
	jc, err := s.Job(name)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithJob(ctx, name)
	planCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.engine.Plan(planCtx, jc.SyncJob())
}

func (s *SyncService) record(ctx context.Context, trigger string, r *etl.RunReport, runErr error) {
	if s.history == nil || r == nil {
		return
	}
	log := logging.FromContext(ctx)
	entry := RunLogFromReport(r, trigger)
	if runErr != nil && entry.Error == "" {
		entry.Error = runErr.Error()
	}
	if err := s.history.CreateRunLog(entry); err != nil {
		log.Warn().Err(err).Msg("could not record run log")
	}
	s.setStatus(ctx, r.Job, entry.Status, entry.Error)
}

func (s *SyncService) setStatus(ctx context.Context, job, status, errMsg string) {
	if s.history == nil {
		return
	}
	if err := s.history.UpdateJobStatus(job, status, errMsg); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("status", status).Msg("could not update job status")
	}
}

// RunLogFromReport converts a run report to its history entry.
func RunLogFromReport(r *etl.RunReport, trigger string) *domain.RunLog {
	status := r.Status
	if status == "" {
		status = "error"
	}
	return &domain.RunLog{
		ID:              r.RunID,
		Job:             r.Job,
		Table:           r.Table,
		Trigger:         trigger,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Status:          status,
		RowsRead:        r.RowsRead,
		Inserted:        r.Inserted,
		Updated:         r.Updated,
		Unchanged:       r.Unchanged,
		Failed:          len(r.Failed),
		Annotated:       r.Annotated,
		AnnotationError: r.AnnotationError,
		Error:           r.Error,
	}
}

// ── History ────────────────────────────────────────────────

// ListRunLogs returns the newest runs of a job, or of all jobs when job
// is empty.
func (s *SyncService) ListRunLogs(job string, limit int) ([]domain.RunLog, error) {
	if s.history == nil {
		return []domain.RunLog{}, nil
	}
	if job != "" {
		if _, err := s.Job(job); err != nil {
			return nil, err
		}
	}
	return s.history.ListRunLogs(job, limit)
}

// PruneHistory deletes run logs that started before cutoff.
func (s *SyncService) PruneHistory(cutoff time.Time) (int, error) {
	if s.history == nil {
		return 0, nil
	}
	return s.history.DeleteRunLogsBefore(cutoff)
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *SyncService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}
