package blockfirst

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevelEnv names the environment variable read by LevelFromEnv.
const LogLevelEnv = "BLOCKFIRST_LOG_LEVEL"

// Logger wraps slog.Logger with harness-specific fields.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that writes human-readable text to w.
func NewTextLogger(w io.Writer, level slog.Leveler) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that writes JSON records to w.
func NewJSONLogger(w io.Writer, level slog.Leveler) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithWorker tags records with the worker index and its OS thread id.
func (l *Logger) WithWorker(id int, tid int) *Logger {
	return &Logger{Logger: l.Logger.With("worker", id, "tid", tid)}
}

// WithStore tags records with the store name.
func (l *Logger) WithStore(name string) *Logger {
	return &Logger{Logger: l.Logger.With("store", name)}
}

// LevelFromEnv returns the level named by BLOCKFIRST_LOG_LEVEL, or def
// when the variable is unset or unrecognized.
func LevelFromEnv(def slog.Level) slog.Level {
	switch strings.ToUpper(os.Getenv(LogLevelEnv)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return def
}
