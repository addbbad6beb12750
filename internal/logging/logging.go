// Package logging wraps log/slog behind the functional-option
// constructor AFD's command-line tools share, modeled on the teacher's
// own logger package: NewLogger(opts...) plus WithDebug/WithFormat/
// WithWriter/WithQuiet/WithLogFile, with the caller's real source
// location preserved even though every call passes through this
// wrapper.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is the logging surface every AFD component takes instead of
// depending on log/slog directly.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

type options struct {
	debug   bool
	format  string
	writer  io.Writer
	quiet   bool
	logFile *os.File
}

// Option configures NewLogger.
type Option func(*options)

// WithDebug enables debug-level logging and source-location
// attribution.
func WithDebug() Option { return func(o *options) { o.debug = true } }

// WithFormat selects "text" (default) or "json" record rendering.
func WithFormat(format string) Option { return func(o *options) { o.format = format } }

// WithWriter overrides the primary destination (default os.Stdout).
func WithWriter(w io.Writer) Option { return func(o *options) { o.writer = w } }

// WithQuiet discards the primary writer's output; a WithLogFile
// destination, if any, still receives every record.
func WithQuiet() Option { return func(o *options) { o.quiet = true } }

// WithLogFile tees every record to f in addition to the primary
// writer.
func WithLogFile(f *os.File) Option { return func(o *options) { o.logFile = f } }

type logger struct {
	slog *slog.Logger
}

// NewLogger builds a Logger from opts. With no options it logs
// human-readable text at info level to stdout.
func NewLogger(opts ...Option) Logger {
	o := options{format: "text", writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: o.debug}

	primary := o.writer
	if o.quiet {
		primary = io.Discard
	}

	handlers := []slog.Handler{newHandler(primary, o.format, handlerOpts)}
	if o.logFile != nil {
		handlers = append(handlers, newHandler(o.logFile, o.format, handlerOpts))
	}

	var h slog.Handler
	if len(handlers) == 1 {
		h = handlers[0]
	} else {
		h = slogmulti.Fanout(handlers...)
	}

	return &logger{slog: slog.New(h)}
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// log records msg at level, attributing the call to the frame `skip`
// levels up the stack (skip=3 covers runtime.Callers itself, log, and
// a direct public method; the context-based package functions also
// call log directly and pass skip=3).
func (l *logger) log(level slog.Level, skip int, msg string, args ...any) {
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.slog.Handler().Handle(ctx, r)
}

func (l *logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, 3, msg, args...) }
func (l *logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, 3, msg, args...) }
func (l *logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, 3, msg, args...) }
func (l *logger) Error(msg string, args ...any) { l.log(slog.LevelError, 3, msg, args...) }

func (l *logger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, 3, fmt.Sprintf(format, args...))
}
func (l *logger) Infof(format string, args ...any) {
	l.log(slog.LevelInfo, 3, fmt.Sprintf(format, args...))
}
func (l *logger) Warnf(format string, args ...any) {
	l.log(slog.LevelWarn, 3, fmt.Sprintf(format, args...))
}
func (l *logger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, 3, fmt.Sprintf(format, args...))
}

func (l *logger) With(args ...any) Logger {
	return &logger{slog: l.slog.With(args...)}
}

func (l *logger) WithGroup(name string) Logger {
	return &logger{slog: l.slog.WithGroup(name)}
}
