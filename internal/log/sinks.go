package log

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultMaxSizeMB is the size at which the log file is rotated.
	DefaultMaxSizeMB = 30
	// DefaultMaxBackups is the number of rotated log files kept.
	DefaultMaxBackups = 10
)

// Options configures Setup.
type Options struct {
	// Console receives records above Error level, or Debug when Verbose is set.
	// Nil disables the console sink.
	Console io.Writer
	// Verbose lowers the console level to Debug.
	Verbose bool
	// File is the path of the rotating log file. Empty disables the file sink.
	File string
	// MaxSizeMB is the rotation size. Zero means DefaultMaxSizeMB.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Zero means DefaultMaxBackups.
	MaxBackups int
	// JSON writes the file sink as JSON lines instead of text.
	JSON bool
}

// Setup builds the application logger. The file sink records everything at
// Debug level with source locations; the console sink shows only records
// above Error unless verbose. Both sinks sit behind a SecureHandler.
//
// The returned io.Closer closes the log file and must be called on exit.
func Setup(opts Options) (*slog.Logger, io.Closer) {
	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = DefaultMaxSizeMB
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = DefaultMaxBackups
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
		}
		closer = rotator

		fileOpts := &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true}
		if opts.JSON {
			handlers = append(handlers, slog.NewJSONHandler(rotator, fileOpts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(rotator, fileOpts))
		}
	}

	if opts.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Console, &slog.HandlerOptions{
			Level: consoleLevel(opts.Verbose),
		}))
	}

	if len(handlers) == 0 {
		return slog.New(slog.DiscardHandler), closer
	}
	return slog.New(NewSecureHandler(NewFanoutHandler(handlers...))), closer
}

// FanoutHandler sends each record to every handler that accepts its level.
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler returns a handler that writes to all of handlers.
func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	return &FanoutHandler{handlers: handlers}
}

// Enabled reports whether any handler accepts level.
func (f *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards r to every enabled handler and joins their errors.
func (f *FanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (f *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: handlers}
}

// WithGroup implements slog.Handler.
func (f *FanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &FanoutHandler{handlers: handlers}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
