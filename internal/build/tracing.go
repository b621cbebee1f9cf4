package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TraceConfig configures NewTracerProvider.
type TraceConfig struct {
	// File receives exported spans as JSON. Empty means Writer, or
	// stderr when Writer is nil too.
	File string

	Writer io.Writer
}

// Tracing owns an installed tracer provider.
type Tracing struct {
	provider *sdktrace.TracerProvider
	file     *os.File
}

// NewTracerProvider builds an SDK tracer provider exporting spans with the
// stdout exporter and installs it as the global provider, so package-level
// tracers start recording.
func NewTracerProvider(cfg TraceConfig) (*Tracing, error) {
	w := cfg.Writer
	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
			return nil, fmt.Errorf("creating trace directory: %w", err)
		}
		f, err := os.OpenFile(
			cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600,
		)
		if err != nil {
			return nil, fmt.Errorf("opening trace file: %w", err)
		}
		file, w = f, f
	}
	if w == nil {
		w = os.Stderr
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, fmt.Errorf("creating span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)

	return &Tracing{provider: tp, file: file}, nil
}

// Shutdown flushes pending spans and closes the trace file.
func (t *Tracing) Shutdown(ctx context.Context) error {
	err := t.provider.Shutdown(ctx)
	if t.file != nil {
		err = errors.Join(err, t.file.Close())
	}
	return err
}
