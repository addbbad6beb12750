package logging

import (
	"context"
	"fmt"
	"log/slog"
)

type contextKey struct{}

var defaultLogger = NewLogger()

// WithLogger attaches l to ctx for retrieval by FromContext and the
// package-level Debug/Info/Warn/Error helpers below.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the Logger attached to ctx, or a package-default
// logger if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return defaultLogger
}

// fromContext extracts the concrete *logger so these package
// functions can pass the right stack-skip depth to log; every Logger
// in this package is built by NewLogger, so the assertion always
// succeeds.
func fromContext(ctx context.Context) *logger {
	return FromContext(ctx).(*logger)
}

// Debug, Info, Warn, and Error log through ctx's attached Logger,
// calling (*logger).log directly at the same stack depth the Logger
// interface's own methods do, so skip=3 keeps source attribution on
// the real call site.

func Debug(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).log(slog.LevelDebug, 3, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).log(slog.LevelInfo, 3, msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).log(slog.LevelWarn, 3, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	fromContext(ctx).log(slog.LevelError, 3, msg, args...)
}

func Debugf(ctx context.Context, format string, args ...any) {
	fromContext(ctx).log(slog.LevelDebug, 3, fmt.Sprintf(format, args...))
}

func Infof(ctx context.Context, format string, args ...any) {
	fromContext(ctx).log(slog.LevelInfo, 3, fmt.Sprintf(format, args...))
}

func Warnf(ctx context.Context, format string, args ...any) {
	fromContext(ctx).log(slog.LevelWarn, 3, fmt.Sprintf(format, args...))
}

func Errorf(ctx context.Context, format string, args ...any) {
	fromContext(ctx).log(slog.LevelError, 3, fmt.Sprintf(format, args...))
}
