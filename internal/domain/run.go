package domain

import "time"

// RunLog is the stored summary of one sync run. It is audit history only;
// the engine never reads it back.
type RunLog struct {
	ID              string    `json:"id" yaml:"id"`
	Job             string    `json:"job" yaml:"job"`
	Table           string    `json:"table" yaml:"table"`
	Trigger         string    `json:"trigger" yaml:"trigger"` // "manual" | "schedule" | "file_watch" | "mcp"
	StartedAt       time.Time `json:"startedAt" yaml:"started_at"`
	FinishedAt      time.Time `json:"finishedAt" yaml:"finished_at"`
	Status          string    `json:"status" yaml:"status"` // "success" | "error"
	RowsRead        int       `json:"rowsRead" yaml:"rows_read"`
	Inserted        int       `json:"inserted" yaml:"inserted"`
	Updated         int       `json:"updated" yaml:"updated"`
	Unchanged       int       `json:"unchanged" yaml:"unchanged"`
	Failed          int       `json:"failed" yaml:"failed"`
	Annotated       int       `json:"annotated" yaml:"annotated"`
	AnnotationError string    `json:"annotationError,omitempty" yaml:"annotation_error,omitempty"`
	Error           string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunLogStore persists run history.
type RunLogStore interface {
	CreateRunLog(l *RunLog) error
	ListRunLogs(job string, limit int) ([]RunLog, error)
	DeleteRunLogsBefore(t time.Time) (int, error)
}
