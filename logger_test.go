package blockfirst

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLogger(&buf, slog.LevelInfo).WithStore("mem").WithWorker(3, 1234)
	log.Info("progress", "iteration", 5)
	log.Debug("hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "progress", rec["msg"])
	assert.Equal(t, "mem", rec["store"])
	assert.Equal(t, float64(3), rec["worker"])
	assert.Equal(t, float64(1234), rec["tid"])
	assert.Equal(t, float64(5), rec["iteration"])
}

func TestNoopLogger(t *testing.T) {
	log := NoopLogger()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnv, "debug")
	assert.Equal(t, slog.LevelDebug, LevelFromEnv(slog.LevelInfo))

	t.Setenv(LogLevelEnv, "WARN")
	assert.Equal(t, slog.LevelWarn, LevelFromEnv(slog.LevelInfo))

	t.Setenv(LogLevelEnv, "loud")
	assert.Equal(t, slog.LevelError, LevelFromEnv(slog.LevelError))

	t.Setenv(LogLevelEnv, "")
	assert.Equal(t, slog.LevelInfo, LevelFromEnv(slog.LevelInfo))
}
