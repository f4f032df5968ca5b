package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
	"sheetsync/internal/secret"
)

const sampleConfig = `
log:
  level: debug
  format: json
state_dir: state
run_timeout: 2m
database:
  driver: postgres
  host: db.internal
  port: 5432
  name: analytics
  user: loader
  ssl_mode: require
jobs:
  - name: weather
    source:
      type: xlsx_file
      path: data/weather_data.xlsx
      sheet: Daily
    table: weather_data
    primary_key: City
    excluded_columns: [Notes]
    ignore_column_prefixes: ["2024-"]
    mode: upsert
    trigger: schedule
    schedule: "*/15 * * * *"
  - name: stations
    source:
      type: csv_file
      path: /abs/stations.csv
    table: stations
    primary_key: id
    annotate: false
    trigger: file_watch
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sheetsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "state", cfg.StateDir)
	assert.Equal(t, filepath.Join("state", "history.db"), cfg.HistoryPath())
	assert.Equal(t, 2*time.Minute, cfg.RunTimeout)

	assert.Equal(t, domain.DatabaseDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "analytics", cfg.Database.Database)
	assert.Equal(t, "loader", cfg.Database.Username)
	assert.Equal(t, "require", cfg.Database.SSLMode)

	require.Len(t, cfg.Jobs, 2)
	weather, err := cfg.Job("weather")
	require.NoError(t, err)
	assert.Equal(t, "xlsx_file", weather.SourceType())
	assert.Equal(t, filepath.Join(dir, "data", "weather_data.xlsx"), weather.SourcePath())

	stations, err := cfg.Job("stations")
	require.NoError(t, err)
	assert.Equal(t, "/abs/stations.csv", stations.SourcePath())

	_, err = cfg.Job("nope")
	assert.Error(t, err)
}

func TestJobConfig_SyncJob(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	weather, _ := cfg.Job("weather")
	job := weather.SyncJob()
	assert.Equal(t, "weather", job.Name)
	assert.Equal(t, "xlsx_file", job.SourceType)
	assert.Equal(t, "Daily", job.SourceCfg.String("sheet", ""))
	assert.NotContains(t, job.SourceCfg, "type")
	assert.Equal(t, "weather_data", job.Table)
	assert.Equal(t, "City", job.PrimaryKey)
	assert.Equal(t, []string{"Notes"}, job.ExcludedColumns)
	assert.Equal(t, []string{"2024-"}, job.IgnoreColumnPrefixes)
	assert.Equal(t, etl.SyncUpsert, job.Mode)
	assert.True(t, job.Annotate)
	assert.Equal(t, TriggerSchedule, job.TriggerType)
	assert.Equal(t, "*/15 * * * *", job.Schedule)

	stations, _ := cfg.Job("stations")
	assert.False(t, stations.SyncJob().Annotate)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SHEETSYNC_DATABASE_PASSWORD", "s3cret")
	t.Setenv("SHEETSYNC_DATABASE_HOST", "override.internal")
	t.Setenv("SHEETSYNC_RUN_TIMEOUT", "30s")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 30*time.Second, cfg.RunTimeout)
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	envFile := filepath.Join(filepath.Dir(path), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SHEETSYNC_DATABASE_USER=from_dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SHEETSYNC_DATABASE_USER") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_dotenv", cfg.Database.Username)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "jobs: []\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRunTimeout, cfg.RunTimeout)
	assert.Equal(t, domain.DatabaseDriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.True(t, filepath.IsAbs(cfg.StateDir) || cfg.StateDir == "~/.local/share/sheetsync")
}

func TestLoad_SQLitePathRelativeToConfig(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n  host: dest.db\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "dest.db"), cfg.Database.Host)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  driver: oracle
jobs:
  - name: a
    source: {type: pdf_file}
    mode: replace
    trigger: schedule
    schedule: "not a cron"
  - name: a
    source: {type: csv_file, path: a.csv}
    table: t
    primary_key: id
    trigger: hourly
`))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unsupported driver "oracle"`,
		`unknown source type: "pdf_file"`,
		"source.path is required",
		"table is required",
		"primary_key is required",
		`unknown mode "replace"`,
		"schedule:",
		`duplicate job name "a"`,
		`unknown trigger "hourly"`,
	} {
		assert.Contains(t, msg, want)
	}
}

func TestResolvePassword(t *testing.T) {
	cfg := &Config{Database: domain.DatabaseConnection{Password: "inline"}}
	pw, err := cfg.ResolvePassword(secret.NewEnvStore())
	require.NoError(t, err)
	assert.Equal(t, "inline", pw)

	t.Setenv("SHEETSYNC_SECRET_PROD_DB", "from-secret")
	cfg = &Config{Database: domain.DatabaseConnection{PasswordSecret: "prod-db"}}
	pw, err = cfg.ResolvePassword(secret.NewEnvStore())
	require.NoError(t, err)
	assert.Equal(t, "from-secret", pw)

	cfg = &Config{Database: domain.DatabaseConnection{PasswordSecret: "absent"}}
	_, err = cfg.ResolvePassword(secret.NewEnvStore())
	assert.Error(t, err)
}
