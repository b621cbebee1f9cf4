package build

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewLoggerConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := NewLogger(LogConfig{Level: "warn", Console: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log.Info("hidden")
	log.Warn("shown", "identity", "montse")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "identity=montse")
}

func TestNewLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	log, closer, err := NewLogger(LogConfig{
		Dir: dir, Level: "info", Console: &buf,
	})
	require.NoError(t, err)

	log.With("component", "sync").Info("pass finished", "identities", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, DefaultLogFilename))
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"pass finished"`)
	require.Contains(t, string(data), `"component":"sync"`)
	require.Contains(t, buf.String(), "pass finished")
}
