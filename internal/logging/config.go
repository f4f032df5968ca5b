package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, off.
	Level string `mapstructure:"level" yaml:"level"`

	// Format is auto, json or console. Auto picks console on a terminal.
	Format string `mapstructure:"format" yaml:"format"`

	// Output is stderr, stdout, discard or a file path.
	Output string `mapstructure:"output" yaml:"output"`

	NoColor bool `mapstructure:"no_color" yaml:"no_color"`
}

// DefaultConfig returns info-level auto-format logging to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:   envOr("SHEETSYNC_LOG_LEVEL", "info"),
		Format:  envOr("SHEETSYNC_LOG_FORMAT", "auto"),
		Output:  "stderr",
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// New builds a logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) zerolog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(writer(cfg)).
		Level(level).
		With().
		Timestamp().
		Logger()
	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// Configure builds a logger from cfg and installs it as the default.
func Configure(cfg *Config) {
	SetDefault(New(cfg))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return zerolog.WarnLevel
	case "off", "none", "disabled":
		return zerolog.Disabled
	case "":
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

func writer(cfg *Config) io.Writer {
	var out io.Writer
	var file *os.File
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		file = os.Stderr
	case "stdout":
		file = os.Stdout
	case "discard", "none":
		out = io.Discard
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			file = os.Stderr
		} else {
			file = f
		}
	}
	if file != nil {
		out = file
	}

	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		return consoleWriter(out, cfg.NoColor)
	case "json":
		return out
	default:
		if file != nil && isTerminal(file) {
			return consoleWriter(out, cfg.NoColor)
		}
		return out
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
