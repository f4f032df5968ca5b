package logging_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetsync/internal/logging"
)

func restoreDefaults(t *testing.T) {
	t.Helper()
	original := *logging.Default()
	level := zerolog.GlobalLevel()
	t.Cleanup(func() {
		logging.SetDefault(original)
		zerolog.SetGlobalLevel(level)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, logging.ParseLevel(tt.in))
		})
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	restoreDefaults(t)

	path := filepath.Join(t.TempDir(), "sheetsync.log")
	logger := logging.New(&logging.Config{Level: "debug", Format: "json", Output: path})
	logger.Info().Str("job", "weather").Msg("sync completed")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"job":"weather"`)
	assert.Contains(t, string(data), `"message":"sync completed"`)
}

func TestLevelFiltersEvents(t *testing.T) {
	restoreDefaults(t)

	path := filepath.Join(t.TempDir(), "sheetsync.log")
	logger := logging.New(&logging.Config{Level: "warn", Format: "json", Output: path})
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestContextLogger(t *testing.T) {
	restoreDefaults(t)

	assert.Same(t, logging.Default(), logging.FromContext(context.Background()))

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ctx := logging.WithLogger(context.Background(), &logger)
	ctx = logging.WithJob(ctx, "weather")

	logging.FromContext(ctx).Info().Msg("hello")
	assert.Contains(t, buf.String(), `"job":"weather"`)
}
