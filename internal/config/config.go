// Package config loads sheetsync's YAML configuration, layered with
// SHEETSYNC_* environment variables and optional .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"sheetsync/internal/domain"
	"sheetsync/internal/etl"
	_ "sheetsync/internal/etl/sources"
	"sheetsync/internal/logging"
	"sheetsync/internal/secret"
)

// EnvPrefix prefixes every environment override: database.password is
// read from SHEETSYNC_DATABASE_PASSWORD.
const EnvPrefix = "SHEETSYNC"

// DefaultRunTimeout bounds one run started by the service.
const DefaultRunTimeout = 5 * time.Minute

// Config is the whole configuration file.
type Config struct {
	Log        logging.Config            `mapstructure:"log" yaml:"log"`
	StateDir   string                    `mapstructure:"state_dir" yaml:"state_dir"`
	RunTimeout time.Duration             `mapstructure:"run_timeout" yaml:"run_timeout"`
	Database   domain.DatabaseConnection `mapstructure:"database" yaml:"database"`
	Metrics    MetricsConfig             `mapstructure:"metrics" yaml:"metrics"`
	Jobs       []JobConfig               `mapstructure:"jobs" yaml:"jobs"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-" yaml:"-"`
}

// MetricsConfig controls the Prometheus endpoint of watch mode.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // e.g. ":9090"; empty disables
}

// JobConfig is one job entry. Source holds the source options, with the
// source type under "type".
type JobConfig struct {
	Name                 string         `mapstructure:"name" yaml:"name"`
	Source               map[string]any `mapstructure:"source" yaml:"source"`
	Table                string         `mapstructure:"table" yaml:"table"`
	PrimaryKey           string         `mapstructure:"primary_key" yaml:"primary_key"`
	ExcludedColumns      []string       `mapstructure:"excluded_columns" yaml:"excluded_columns,omitempty"`
	IgnoreColumnPrefixes []string       `mapstructure:"ignore_column_prefixes" yaml:"ignore_column_prefixes,omitempty"`
	AuditColumn          string         `mapstructure:"audit_column" yaml:"audit_column,omitempty"`
	MarkerColumn         string         `mapstructure:"marker_column" yaml:"marker_column,omitempty"`
	Mode                 string         `mapstructure:"mode" yaml:"mode,omitempty"`
	Annotate             *bool          `mapstructure:"annotate" yaml:"annotate,omitempty"` // nil means true
	WriteRetries         int            `mapstructure:"write_retries" yaml:"write_retries,omitempty"`
	Trigger              string         `mapstructure:"trigger" yaml:"trigger,omitempty"`
	Schedule             string         `mapstructure:"schedule" yaml:"schedule,omitempty"`
}

// SourceType returns the job's source type.
func (j *JobConfig) SourceType() string {
	s, _ := j.Source["type"].(string)
	return s
}

// SourcePath returns the source file path, if any.
func (j *JobConfig) SourcePath() string {
	s, _ := j.Source["path"].(string)
	return s
}

// SyncJob converts the entry into the engine's job type.
func (j *JobConfig) SyncJob() *etl.SyncJob {
	cfg := make(etl.SourceConfig, len(j.Source))
	for k, v := range j.Source {
		if k != "type" {
			cfg[k] = v
		}
	}
	annotate := true
	if j.Annotate != nil {
		annotate = *j.Annotate
	}
	trigger := j.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}
	return &etl.SyncJob{
		Name:                 j.Name,
		SourceType:           j.SourceType(),
		SourceCfg:            cfg,
		Table:                j.Table,
		PrimaryKey:           j.PrimaryKey,
		ExcludedColumns:      j.ExcludedColumns,
		IgnoreColumnPrefixes: j.IgnoreColumnPrefixes,
		AuditColumn:          j.AuditColumn,
		MarkerColumn:         j.MarkerColumn,
		Mode:                 etl.SyncMode(j.Mode),
		Annotate:             annotate,
		WriteRetries:         j.WriteRetries,
		TriggerType:          trigger,
		Schedule:             j.Schedule,
	}
}

// Trigger types.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerFileWatch = "file_watch"
)

// Load reads the config file at path. An empty path searches ./sheetsync.yaml
// and $HOME/.config/sheetsync/sheetsync.yaml; finding none is not an error.
// .env files in the working directory and next to the config file are
// loaded first and never override variables already set.
func Load(path string) (*Config, error) {
	loadEnvFiles(path)

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sheetsync")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "sheetsync"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.finish()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := logging.DefaultConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.format", def.Format)
	v.SetDefault("log.output", def.Output)
	v.SetDefault("log.no_color", def.NoColor)
	v.SetDefault("state_dir", "~/.local/share/sheetsync")
	v.SetDefault("run_timeout", DefaultRunTimeout)
	v.SetDefault("metrics.addr", "")

	// Registered so SHEETSYNC_DATABASE_* reach Unmarshal without a file.
	v.SetDefault("database.driver", string(domain.DatabaseDriverPostgres))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_secret", "")
	v.SetDefault("database.ssl_mode", "disable")
}

// finish expands ~ and resolves relative source paths against the config
// file's directory.
func (c *Config) finish() {
	c.StateDir = expandHome(c.StateDir)
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	base := ""
	if c.File != "" {
		base = filepath.Dir(c.File)
	}
	if c.Database.Driver == domain.DatabaseDriverSQLite {
		c.Database.Host = resolvePath(base, c.Database.Host)
	}
	for i := range c.Jobs {
		if p := c.Jobs[i].SourcePath(); p != "" {
			c.Jobs[i].Source["path"] = resolvePath(base, p)
		}
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func resolvePath(base, p string) string {
	p = expandHome(p)
	if p == "" || base == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func loadEnvFiles(configPath string) {
	files := []string{".env"}
	if configPath != "" {
		if dir := filepath.Dir(configPath); dir != "." {
			files = append(files, filepath.Join(dir, ".env"))
		}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// HistoryPath is the run history database inside StateDir.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.StateDir, "history.db")
}

// Job returns the job with the given name.
func (c *Config) Job(name string) (*JobConfig, error) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], nil
		}
	}
	return nil, fmt.Errorf("job %q not found", name)
}

// ResolvePassword returns the database password: the configured value if
// set, otherwise the password_secret looked up in store.
func (c *Config) ResolvePassword(store secret.SecretStore) (string, error) {
	if c.Database.Password != "" || c.Database.PasswordSecret == "" {
		return c.Database.Password, nil
	}
	return secret.Resolve(store, c.Database.PasswordSecret)
}

// Validate checks the database section and every job.
func (c *Config) Validate() error {
	var errs []error
	if !c.Database.Driver.Valid() {
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}
	if c.Database.Driver == domain.DatabaseDriverSQLite && c.Database.Host == "" && c.Database.Database == "" {
		errs = append(errs, fmt.Errorf("database: sqlite needs host or name (the file path)"))
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		if j.Name == "" {
			errs = append(errs, fmt.Errorf("jobs[%d]: name is required", i))
		} else if seen[j.Name] {
			errs = append(errs, fmt.Errorf("jobs[%d]: duplicate job name %q", i, j.Name))
		}
		seen[j.Name] = true
		if err := j.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d] %s: %w", i, j.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks one job entry.
func (j *JobConfig) Validate() error {
	var errs []error
	if _, err := etl.GetSource(j.SourceType()); err != nil {
		errs = append(errs, fmt.Errorf("source.type: %w", err))
	}
	if j.SourcePath() == "" {
		errs = append(errs, errors.New("source.path is required"))
	}
	if j.Table == "" {
		errs = append(errs, errors.New("table is required"))
	}
	if j.PrimaryKey == "" {
		errs = append(errs, errors.New("primary_key is required"))
	}
	switch etl.SyncMode(j.Mode) {
	case "", etl.SyncDiff, etl.SyncUpsert:
	default:
		errs = append(errs, fmt.Errorf("mode: unknown mode %q", j.Mode))
	}
	switch j.Trigger {
	case "", TriggerManual, TriggerFileWatch:
	case TriggerSchedule:
		if _, err := cron.ParseStandard(j.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("trigger: unknown trigger %q", j.Trigger))
	}
	if j.WriteRetries < 0 {
		errs = append(errs, errors.New("write_retries must not be negative"))
	}
	return errors.Join(errs...)
}
