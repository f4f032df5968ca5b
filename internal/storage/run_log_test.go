package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "state", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_MigratesTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())
	require.NoError(t, db.Close())
}

func TestRunLogStore_CreateAndList(t *testing.T) {
	s := NewRunLogStore(newTestDB(t))
	base := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	for i, job := range []string{"weather", "stations", "weather"} {
		l := &domain.RunLog{
			Job:        job,
			Table:      job,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + 2*time.Second),
			Status:     "success",
			RowsRead:   10 + i,
			Inserted:   i,
		}
		require.NoError(t, s.CreateRunLog(l))
		assert.NotEmpty(t, l.ID)
	}

	logs, err := s.ListRunLogs("weather", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].StartedAt.Equal(base.Add(2*time.Hour)), "newest first")
	assert.Equal(t, 12, logs[0].RowsRead)
	assert.Equal(t, "manual", logs[0].Trigger)
	assert.True(t, logs[0].FinishedAt.Equal(base.Add(2*time.Hour+2*time.Second)))

	all, err := s.ListRunLogs("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.ListRunLogs("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListRunLogs("unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestRunLogStore_ErrorFields(t *testing.T) {
	s := NewRunLogStore(newTestDB(t))
	now := time.Now()
	require.NoError(t, s.CreateRunLog(&domain.RunLog{
		ID:              "run-1",
		Job:             "weather",
		Trigger:         "schedule",
		StartedAt:       now,
		FinishedAt:      now,
		Status:          "error",
		Failed:          2,
		AnnotationError: "read-only file",
		Error:           "write insert weather: boom",
	}))

	logs, err := s.ListRunLogs("weather", 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "run-1", logs[0].ID)
	assert.Equal(t, "schedule", logs[0].Trigger)
	assert.Equal(t, 2, logs[0].Failed)
	assert.Equal(t, "read-only file", logs[0].AnnotationError)
	assert.Equal(t, "write insert weather: boom", logs[0].Error)
}

func TestRunLogStore_DeleteBefore(t *testing.T) {
	s := NewRunLogStore(newTestDB(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.AddDate(0, 0, i)
		require.NoError(t, s.CreateRunLog(&domain.RunLog{Job: "j", StartedAt: at, FinishedAt: at, Status: "success"}))
	}

	n, err := s.DeleteRunLogsBefore(base.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	logs, err := s.ListRunLogs("j", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestRunLogStore_JobStatus(t *testing.T) {
	s := NewRunLogStore(newTestDB(t))

	st, err := s.GetJobStatus("weather")
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, s.UpdateJobStatus("weather", "running", ""))
	require.NoError(t, s.UpdateJobStatus("weather", "error", "connect postgres: refused"))

	st, err = s.GetJobStatus("weather")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "error", st.LastStatus)
	assert.Equal(t, "connect postgres: refused", st.LastError)
	assert.WithinDuration(t, time.Now(), st.LastRunAt, time.Minute)
}
