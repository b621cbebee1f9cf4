package build

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func restoreTracerProvider(t *testing.T) {
	t.Helper()
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
}

func TestTracerProviderExportsSpans(t *testing.T) {
	restoreTracerProvider(t)

	var buf bytes.Buffer
	tracing, err := NewTracerProvider(TraceConfig{Writer: &buf})
	require.NoError(t, err)

	_, span := otel.Tracer("studiosync/test").Start(
		context.Background(), "sync.RunPass",
	)
	span.SetAttributes(attribute.Int("identities", 2))
	span.End()

	require.NoError(t, tracing.Shutdown(context.Background()))
	require.Contains(t, buf.String(), `"Name":"sync.RunPass"`)
	require.Contains(t, buf.String(), `"identities"`)
}

func TestTracerProviderWritesFile(t *testing.T) {
	restoreTracerProvider(t)

	path := filepath.Join(t.TempDir(), "traces", "spans.json")
	tracing, err := NewTracerProvider(TraceConfig{File: path})
	require.NoError(t, err)

	_, span := otel.Tracer("studiosync/test").Start(
		context.Background(), "automation.Process",
	)
	span.End()
	require.NoError(t, tracing.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "automation.Process")
}
