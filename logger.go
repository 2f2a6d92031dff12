package mmarray

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with mmarray-specific context.
// This provides structured logging with consistent field names.
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

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))
}

// WithPath adds a path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogOpen logs an open operation.
func (l *Logger) LogOpen(ctx context.Context, path string, created bool, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "array opened",
		"path", path,
		"created", created,
		"records", records,
	)
}

// LogHeaderAdvisory logs header fields that differ from what the caller expects.
func (l *Logger) LogHeaderAdvisory(ctx context.Context, path string, field, want, got string) {
	l.WarnContext(ctx, "header field differs",
		"path", path,
		"field", field,
		"want", want,
		"got", got,
	)
}

// LogRemap logs a change of mapping capacity.
func (l *Logger) LogRemap(ctx context.Context, oldCapacity, newCapacity int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "remap failed",
			"old_capacity", oldCapacity,
			"new_capacity", newCapacity,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "remap completed",
		"old_capacity", oldCapacity,
		"new_capacity", newCapacity,
	)
}

// LogFlush logs a flush operation.
func (l *Logger) LogFlush(ctx context.Context, pages int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"pages", pages,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "flush completed",
		"pages", pages,
		"duration", duration,
	)
}

// LogClose logs a close operation.
func (l *Logger) LogClose(ctx context.Context, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "array closed",
		"path", path,
	)
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, name string, seq uint64, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot saved",
		"name", name,
		"seq", seq,
		"bytes", bytes,
	)
}

// LogRestore logs a restore operation.
func (l *Logger) LogRestore(ctx context.Context, name, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"name", name,
			"path", path,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot restored",
		"name", name,
		"path", path,
	)
}
