// Package termlog provides file-based logging while the PTY proxy owns the
// terminal. Nothing may be written to stdout/stderr during play, so every
// package logs through the global Log, which discards until Init is called.
package termlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is a leveled logfmt logger backed by a file.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	out     io.Writer
	logger  *log.Logger
	enabled bool
}

// Log is the global logger instance.
var Log = &Logger{}

// Init points the global logger at path. If path is empty, logging is
// disabled. level is one of debug, info, warn, error (default debug).
func Init(path, level string) error {
	if path == "" {
		Log.reset(nil, nil)
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	Log.reset(f, newBackend(f, level))
	Log.Info("Logger initialized", "path", path, "pid", os.Getpid())
	return nil
}

// New returns a logger writing to w, for tests and embedding.
func New(w io.Writer, level string) *Logger {
	l := &Logger{}
	l.reset(nil, newBackend(w, level))
	l.out = w
	return l
}

func newBackend(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil || level == "" {
		lvl = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
		Level:           lvl,
		Formatter:       log.LogfmtFormatter,
	})
}

func (l *Logger) reset(f *os.File, backend *log.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.out = nil
	if f != nil {
		l.out = f
	}
	l.logger = backend
	l.enabled = backend != nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Enabled returns whether logging is active.
func (l *Logger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Writer returns the underlying io.Writer, e.g. for subprocess stderr.
func (l *Logger) Writer() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || l.out == nil {
		return io.Discard
	}
	return l.out
}

func (l *Logger) backend() *log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return nil
	}
	return l.logger
}

// Debug logs a debug message with optional key-value pairs.
func (l *Logger) Debug(msg string, keyvals ...any) {
	if b := l.backend(); b != nil {
		b.Debug(msg, keyvals...)
	}
}

// Info logs an info message with optional key-value pairs.
func (l *Logger) Info(msg string, keyvals ...any) {
	if b := l.backend(); b != nil {
		b.Info(msg, keyvals...)
	}
}

// Warn logs a warning message with optional key-value pairs.
func (l *Logger) Warn(msg string, keyvals ...any) {
	if b := l.backend(); b != nil {
		b.Warn(msg, keyvals...)
	}
}

// Error logs an error message with optional key-value pairs.
func (l *Logger) Error(msg string, keyvals ...any) {
	if b := l.backend(); b != nil {
		b.Error(msg, keyvals...)
	}
}

// Timed logs the duration of an operation. Usage:
//
//	defer termlog.Log.Timed("criu dump")()
func (l *Logger) Timed(operation string, keyvals ...any) func() {
	if !l.Enabled() {
		return func() {}
	}
	start := time.Now()
	l.Debug(operation, append([]any{"status", "started"}, keyvals...)...)
	return func() {
		l.Debug(operation, append([]any{"status", "completed", "duration", time.Since(start)}, keyvals...)...)
	}
}
