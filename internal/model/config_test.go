package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	require.Equal(t, 120*time.Second, cfg.Sync.Interval())
	require.Equal(t, 5*time.Second, cfg.Sync.InitialDelay())
	require.Equal(t, 60*time.Second, cfg.Cache.StaleAfter())
	require.Equal(t, []string{"INBOX"}, cfg.Sync.AutomationFolders)
	require.Equal(t, "Gestionados", cfg.Mail.ArchiveFolder)
	require.Equal(t, 500, cfg.Mail.ProcessedCap)
	require.Equal(t, 30*24*time.Hour, cfg.Mail.DeletedRetention())
	require.Equal(t, TodoColumnID("b_kit_digital"), cfg.KitDigital.ColumnID)
	require.False(t, cfg.Trace.Enabled)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
roster:
  - id: montse
  - id: alba
    enabled: false
  - id: jordi
aliases:
  jordi: JORDI_WORK
routing:
  Montse:
    board_id: b_montse
    name: Montse
sync:
  interval_sec: 300
  folders: [INBOX]
bridge:
  kind: imap
trace:
  enabled: true
  file: /var/log/studiosync/spans.json
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, []string{"montse", "jordi"}, cfg.Identities())
	require.Equal(t, 5*time.Minute, cfg.Sync.Interval())
	require.Equal(t, []string{"INBOX"}, cfg.Sync.Folders)
	require.Equal(t, 4, cfg.Sync.Workers)
	require.Equal(t, BridgeIMAP, cfg.Bridge.Kind)
	require.True(t, cfg.Trace.Enabled)
	require.Equal(t, "/var/log/studiosync/spans.json", cfg.Trace.File)

	// Viper lower-cases map keys.
	route, ok := cfg.Route("MONTSE")
	require.True(t, ok)
	require.Equal(t, "b_montse", route.BoardID)

	_, ok = cfg.Route("alba")
	require.False(t, ok)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := map[string]string{
		"duplicate identity": `
roster:
  - id: montse
  - id: montse
`,
		"route without board": `
routing:
  montse:
    name: Montse
`,
		"unknown bridge": `
bridge:
  kind: pigeon
`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultAppConfig()
	cfg.Roster = []MemberConfig{{ID: "montse", Enabled: true}}
	cfg.Routing = map[string]RouteConfig{
		"montse": {BoardID: "b_montse", Name: "Montse"},
	}
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"montse"}, loaded.Identities())
	require.Equal(t, cfg.Routing, loaded.Routing)
	require.Equal(t, cfg.Sync, loaded.Sync)
}
