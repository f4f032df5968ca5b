package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sheetsync/internal/domain"
)

// RunLogStore implements domain.RunLogStore on SQLite.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

var _ domain.RunLogStore = (*RunLogStore)(nil)

// CreateRunLog stores one run. An empty ID is assigned a new UUID.
func (s *RunLogStore) CreateRunLog(l *domain.RunLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Trigger == "" {
		l.Trigger = "manual"
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO run_logs (id, job, table_name, trigger_type, started_at, finished_at, status,
		 rows_read, inserted, updated, unchanged, failed, annotated, annotation_error, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Job, l.Table, l.Trigger, l.StartedAt.UTC(), l.FinishedAt.UTC(), l.Status,
		l.RowsRead, l.Inserted, l.Updated, l.Unchanged, l.Failed, l.Annotated, l.AnnotationError, l.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// ListRunLogs returns the newest runs first. An empty job lists every job.
func (s *RunLogStore) ListRunLogs(job string, limit int) ([]domain.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, job, table_name, trigger_type, started_at, finished_at, status,
		 rows_read, inserted, updated, unchanged, failed, annotated, annotation_error, error
		 FROM run_logs`
	args := []any{}
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []domain.RunLog{}
	for rows.Next() {
		var l domain.RunLog
		if err := rows.Scan(
			&l.ID, &l.Job, &l.Table, &l.Trigger, &l.StartedAt, &l.FinishedAt, &l.Status,
			&l.RowsRead, &l.Inserted, &l.Updated, &l.Unchanged, &l.Failed, &l.Annotated,
			&l.AnnotationError, &l.Error,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteRunLogsBefore prunes runs that started before t.
func (s *RunLogStore) DeleteRunLogsBefore(t time.Time) (int, error) {
	res, err := s.db.conn.Exec(`DELETE FROM run_logs WHERE started_at < ?`, t.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ── Job status ─────────────────────────────────────────────

// JobStatus is the outcome of a job's most recent run.
type JobStatus struct {
	Job        string    `json:"job" yaml:"job"`
	LastRunAt  time.Time `json:"lastRunAt" yaml:"last_run_at"`
	LastStatus string    `json:"lastStatus" yaml:"last_status"` // "running" | "success" | "error"
	LastError  string    `json:"lastError,omitempty" yaml:"last_error,omitempty"`
}

// UpdateJobStatus records the latest status of a job.
func (s *RunLogStore) UpdateJobStatus(job, status, errMsg string) error {
	_, err := s.db.conn.Exec(
		`INSERT INTO job_status (job, last_run_at, last_status, last_error) VALUES (?, ?, ?, ?)
		 ON CONFLICT(job) DO UPDATE SET last_run_at = excluded.last_run_at,
		 last_status = excluded.last_status, last_error = excluded.last_error`,
		job, time.Now().UTC(), status, errMsg,
	)
	return err
}

// GetJobStatus returns the job's latest status, or nil if it never ran.
func (s *RunLogStore) GetJobStatus(job string) (*JobStatus, error) {
	st := &JobStatus{}
	err := s.db.conn.QueryRow(
		`SELECT job, last_run_at, last_status, last_error FROM job_status WHERE job = ?`, job,
	).Scan(&st.Job, &st.LastRunAt, &st.LastStatus, &st.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}
