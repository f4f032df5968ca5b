package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/config"
	"sheetsync/internal/dbclient"
	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
	_ "sheetsync/internal/etl/sources"
	"sheetsync/internal/service"
	"sheetsync/internal/storage"
)

func newTestServer(t *testing.T, allowRun bool) (*Server, etl.Store) {
	t.Helper()
	dir := t.TempDir()
	csv := filepath.Join(dir, "weather.csv")
	require.NoError(t, os.WriteFile(csv, []byte("City,Temp\nPune,30\n"), 0o644))

	store, err := dbclient.OpenStore(&domain.DatabaseConnection{
		Driver: domain.DatabaseDriverSQLite,
		Host:   filepath.Join(dir, "dest.db"),
	}, "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db, err := storage.New(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := service.NewSyncService(service.Options{
		Engine: &etl.Engine{Store: store},
		Jobs: []config.JobConfig{{
			Name:       "weather",
			Source:     map[string]any{"type": "csv_file", "path": csv},
			Table:      "weather",
			PrimaryKey: "City",
		}},
		History: storage.NewRunLogStore(db),
	})
	return New(Deps{Sync: svc, AllowRun: allowRun}), store
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListJobs(t *testing.T) {
	s, _ := newTestServer(t, false)

	res, err := s.handleListJobs(context.Background(), call(nil))
	require.NoError(t, err)

	var states []service.JobState
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &states))
	require.Len(t, states, 1)
	assert.Equal(t, "weather", states[0].Name)
	assert.Equal(t, "csv_file", states[0].Source)
	assert.Equal(t, "manual", states[0].Trigger)
}

func TestListSources(t *testing.T) {
	s, _ := newTestServer(t, false)

	res, err := s.handleListSources(context.Background(), call(nil))
	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "csv_file")
	assert.Contains(t, text, "xlsx_file")
}

func TestPlanJob(t *testing.T) {
	s, store := newTestServer(t, false)
	ctx := context.Background()

	_, err := s.handlePlanJob(ctx, call(nil))
	require.Error(t, err)

	res, err := s.handlePlanJob(ctx, call(map[string]any{"job": "weather"}))
	require.NoError(t, err)

	var report etl.RunReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &report))
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Inserted)

	info, err := store.Describe(ctx, "weather")
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestRunJob_DisabledByDefault(t *testing.T) {
	s, store := newTestServer(t, false)
	ctx := context.Background()

	res, err := s.handleRunJob(ctx, call(map[string]any{"job": "weather"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "disabled")

	info, err := store.Describe(ctx, "weather")
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestRunJob_RecordsMCPTrigger(t *testing.T) {
	s, _ := newTestServer(t, true)
	ctx := context.Background()

	res, err := s.handleRunJob(ctx, call(map[string]any{"job": "weather"}))
	require.NoError(t, err)

	var report etl.RunReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &report))
	assert.Equal(t, "success", report.Status)
	assert.Equal(t, 1, report.Inserted)

	res, err = s.handleListRunHistory(ctx, call(map[string]any{"job": "weather", "limit": 5}))
	require.NoError(t, err)
	var logs []domain.RunLog
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, service.TriggerMCP, logs[0].Trigger)
}

func TestRunJob_UnknownJob(t *testing.T) {
	s, _ := newTestServer(t, true)

	_, err := s.handleRunJob(context.Background(), call(map[string]any{"job": "nope"}))
	require.Error(t, err)
}

func TestJobFromHistoryURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"sheetsync://jobs/weather/history", "weather"},
		{"sheetsync://jobs/a/b/history", ""},
		{"sheetsync://jobs", ""},
		{"notes://page/x/blocks", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, jobFromHistoryURI(tt.uri), tt.uri)
	}
}
