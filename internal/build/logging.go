// Package build wires process-wide logging: a console handler plus an
// optional size-rotated log file for the daemon.
package build

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrick/logrotate/rotator"
)

const (
	// DefaultMaxLogFiles is how many rotated files are kept.
	DefaultMaxLogFiles = 5

	// DefaultMaxLogFileSize is the rotation threshold in megabytes.
	DefaultMaxLogFileSize = 10

	// DefaultLogFilename is the daemon log file name.
	DefaultLogFilename = "studiosync.log"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	// Dir enables file logging when set.
	Dir string

	// Level is one of debug, info, warn, error.
	Level string

	MaxLogFiles    int
	MaxLogFileSize int

	// Console receives human-readable output. Nil means stderr.
	Console io.Writer
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// NewLogger builds the process logger. The returned closer flushes and
// closes the log file and must be called on shutdown.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{slog.NewTextHandler(console, opts)}
	closer := io.Closer(nopCloser{})

	if cfg.Dir != "" {
		w := &RotatingLogWriter{}
		err := w.Init(cfg.Dir, cfg.MaxLogFiles, cfg.MaxLogFileSize)
		if err != nil {
			return nil, nil, err
		}
		handlers = append(handlers, slog.NewJSONHandler(w, opts))
		closer = w
	}

	return slog.New(NewFanout(handlers...)), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// RotatingLogWriter feeds a jrick/logrotate rotator through a pipe.
// Rotated files are gzip-compressed.
type RotatingLogWriter struct {
	pipe *io.PipeWriter
	done chan struct{}
}

// Init creates dir and starts the rotator goroutine. Writes before Init
// are discarded.
func (r *RotatingLogWriter) Init(dir string, maxFiles, maxSizeMB int) error {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxLogFiles
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxLogFileSize
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	// The rotator threshold is in kilobytes.
	rot, err := rotator.New(
		filepath.Join(dir, DefaultLogFilename),
		int64(maxSizeMB*1024), false, maxFiles,
	)
	if err != nil {
		return fmt.Errorf("creating file rotator: %w", err)
	}
	rot.SetCompressor(gzip.NewWriter(nil), ".gz")

	pr, pw := io.Pipe()
	r.pipe = pw
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		// The rotator is the log destination, so its own failure can
		// only go to stderr.
		err := rot.Run(pr)
		if err != nil && !errors.Is(err, io.EOF) {
			fmt.Fprintf(os.Stderr, "log rotator stopped: %v\n", err)
		}
		_ = rot.Close()
	}()

	return nil
}

// Write implements io.Writer.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.pipe == nil {
		return len(b), nil
	}
	return r.pipe.Write(b)
}

// Close stops the rotator after it drained pending writes.
func (r *RotatingLogWriter) Close() error {
	if r.pipe == nil {
		return nil
	}
	err := r.pipe.Close()
	<-r.done
	return err
}

// Fanout is a slog.Handler dispatching every record to several handlers.
type Fanout struct {
	handlers []slog.Handler
}

// NewFanout creates a Fanout over handlers.
func NewFanout(handlers ...slog.Handler) *Fanout {
	return &Fanout{handlers: handlers}
}

// Enabled reports whether any handler accepts level.
func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle passes the record to each handler that accepts its level.
func (f *Fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs implements slog.Handler.
func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &Fanout{handlers: next}
}

// WithGroup implements slog.Handler.
func (f *Fanout) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return &Fanout{handlers: next}
}
