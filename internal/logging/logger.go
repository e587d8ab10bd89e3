// =============================================================================
// Invoice Reconciler - Logging
// =============================================================================
//
// Every component takes a Logger so the CLI can decide where records go.
// The default implementation writes leveled key/value records to stdout and,
// when a log file is configured, to that file as well.
//
// USAGE:
//   log, closeFn, err := logging.New(logging.Options{Level: "info", File: "./logs/reconciler.log"})
//   defer closeFn()
//   log.Info("session started", "session", id, "month", month)
//
// =============================================================================

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Logger is an interface for logging. Arguments after msg are alternating
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Options controls the default logger.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Default: "info".
	Level string

	// File, when set, receives a copy of every record.
	File string

	// Stdout is where console records go. Default: os.Stdout.
	Stdout io.Writer
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, args ...interface{}) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...interface{})  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...interface{})  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...interface{}) { s.l.Error(msg, args...) }

// New builds the default logger. The returned close function releases the
// log file, if any.
func New(opts Options) (Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	closeFn := func() error { return nil }
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
		closeFn = f.Close
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &slogLogger{l: slog.New(handler)}, closeFn, nil
}

// ParseLevel maps the config vocabulary onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Nop discards everything. Used as the fallback when no logger is injected.
func Nop() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
