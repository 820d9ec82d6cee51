package chunkcache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with chunkcache-specific context.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithNamespace adds the storage namespace to the logger.
func (l *Logger) WithNamespace(ns string) *Logger {
	return &Logger{
		Logger: l.Logger.With("namespace", ns),
	}
}

// WithItem adds an item id field to the logger.
func (l *Logger) WithItem(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("item", id),
	}
}

// LogOpen logs the index rebuild performed by Open.
func (l *Logger) LogOpen(ctx context.Context, items, chunks, orphans int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "cache opened",
			"items", items,
			"chunks", chunks,
			"orphans", orphans,
		)
	}
}

// LogSet logs a set operation.
func (l *Logger) LogSet(ctx context.Context, id string, chunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "set failed",
			"item", id,
			"chunks", chunks,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "set completed",
			"item", id,
			"chunks", chunks,
		)
	}
}

// LogGet logs a get operation.
func (l *Logger) LogGet(ctx context.Context, id string, found bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "get failed",
			"item", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "get completed",
			"item", id,
			"found", found,
		)
	}
}

// LogCleanup logs a cleanup pass.
func (l *Logger) LogCleanup(ctx context.Context, removed, remaining int, err error) {
	if err != nil {
		l.WarnContext(ctx, "cleanup completed with failures",
			"removed", removed,
			"remaining", remaining,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "cleanup completed",
			"removed", removed,
			"remaining", remaining,
		)
	}
}

// LogClear logs a clear operation.
func (l *Logger) LogClear(ctx context.Context, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "clear failed",
			"removed", removed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "cache cleared",
			"removed", removed,
		)
	}
}
