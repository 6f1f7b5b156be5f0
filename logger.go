package forwardindex

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with forward index specific helpers.
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

// WithField adds a field name to the logger.
func (l *Logger) WithField(field string) *Logger {
	return &Logger{
		Logger: l.Logger.With("field", field),
	}
}

// WithAnnotation adds an annotation name to the logger.
func (l *Logger) WithAnnotation(annotation string) *Logger {
	return &Logger{
		Logger: l.Logger.With("annotation", annotation),
	}
}

// LogOpen logs opening a forward index.
func (l *Logger) LogOpen(ctx context.Context, field, strategy string, annotations int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"field", field,
			"strategy", strategy,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "forward index opened",
			"field", field,
			"strategy", strategy,
			"annotations", annotations,
		)
	}
}

// LogInitialize logs the initialization of one annotation index.
// Cancellation is expected when the index is closed early and is only
// logged at debug level.
func (l *Logger) LogInitialize(ctx context.Context, annotation string, d time.Duration, err error) {
	switch {
	case err == nil:
		l.DebugContext(ctx, "annotation initialized",
			"annotation", annotation,
			"duration", d,
		)
	case isCancellation(err):
		l.DebugContext(ctx, "annotation initialization cancelled",
			"annotation", annotation,
		)
	default:
		l.WarnContext(ctx, "annotation initialization failed, retrying on first use",
			"annotation", annotation,
			"error", err,
		)
	}
}

// LogMerge logs the merge of segment term spaces.
func (l *Logger) LogMerge(ctx context.Context, annotation string, segments, terms int, d time.Duration) {
	l.InfoContext(ctx, "term spaces merged",
		"annotation", annotation,
		"segments", segments,
		"terms", terms,
		"duration", d,
	)
}

// LogClose logs closing a forward index.
func (l *Logger) LogClose(ctx context.Context, field string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"field", field,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "forward index closed",
			"field", field,
		)
	}
}
