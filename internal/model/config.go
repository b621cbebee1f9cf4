package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MemberConfig is one entry of the mailbox identity roster.
type MemberConfig struct {
	// ID is the mailbox identity (usually a team member id).
	ID string `mapstructure:"id" yaml:"id"`

	// Enabled controls whether the sync driver polls this identity.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// RouteConfig routes automated cards for one identity to a board.
type RouteConfig struct {
	// BoardID is the board receiving cards created from this mailbox.
	BoardID string `mapstructure:"board_id" yaml:"board_id"`

	// Name is the display name used as a card label.
	Name string `mapstructure:"name" yaml:"name"`
}

// KitDigitalConfig configures the global government-notification rule.
type KitDigitalConfig struct {
	Sender      string `mapstructure:"sender" yaml:"sender"`
	BoardID     string `mapstructure:"board_id" yaml:"board_id"`
	ColumnID    string `mapstructure:"column_id" yaml:"column_id"`
	TitlePrefix string `mapstructure:"title_prefix" yaml:"title_prefix"`
}

// SyncConfig holds the periodic sync driver settings.
type SyncConfig struct {
	IntervalSec     int `mapstructure:"interval_sec" yaml:"interval_sec"`
	InitialDelaySec int `mapstructure:"initial_delay_sec" yaml:"initial_delay_sec"`
	FetchTimeoutSec int `mapstructure:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
	Workers         int `mapstructure:"workers" yaml:"workers"`

	// Folders are refreshed for every identity on each pass.
	Folders []string `mapstructure:"folders" yaml:"folders"`

	// AutomationFolders are the folders whose batches feed the
	// automation engine.
	AutomationFolders []string `mapstructure:"automation_folders" yaml:"automation_folders"`
}

// Interval returns the pass interval as a duration.
func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// InitialDelay returns the delay before the first pass.
func (c SyncConfig) InitialDelay() time.Duration {
	return time.Duration(c.InitialDelaySec) * time.Second
}

// FetchTimeout returns the hard bound on one external fetch.
func (c SyncConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}

// CacheConfig holds mailbox cache settings.
type CacheConfig struct {
	StaleAfterSec int `mapstructure:"stale_after_sec" yaml:"stale_after_sec"`
}

// StaleAfter returns the staleness threshold as a duration.
func (c CacheConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSec) * time.Second
}

// StoreConfig locates the document store.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CredentialsConfig controls where mailbox secrets are looked up.
type CredentialsConfig struct {
	// EnvFile is a dotenv file consulted after the process environment.
	EnvFile string `mapstructure:"env_file" yaml:"env_file"`

	// UseKeyring enables the OS keyring as a last secret source.
	UseKeyring bool `mapstructure:"use_keyring" yaml:"use_keyring"`
}

// Bridge kinds.
const (
	BridgeExec = "exec"
	BridgeIMAP = "imap"
)

// BridgeConfig selects the external mail retrieval mechanism.
type BridgeConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"`

	// Command is the argv prefix of the external fetch program used by
	// the exec bridge.
	Command []string `mapstructure:"command" yaml:"command"`

	// TLS selects implicit TLS for the imap bridge.
	TLS bool `mapstructure:"tls" yaml:"tls"`
}

// MailConfig holds mailbox mutation settings.
type MailConfig struct {
	ArchiveFolder        string `mapstructure:"archive_folder" yaml:"archive_folder"`
	ProcessedCap         int    `mapstructure:"processed_cap" yaml:"processed_cap"`
	DeletedRetentionDays int    `mapstructure:"deleted_retention_days" yaml:"deleted_retention_days"`
}

// DeletedRetention returns how long deleted ids are remembered.
func (c MailConfig) DeletedRetention() time.Duration {
	return time.Duration(c.DeletedRetentionDays) * 24 * time.Hour
}

// LogConfig controls daemon logging.
type LogConfig struct {
	Dir   string `mapstructure:"dir" yaml:"dir"`
	Level string `mapstructure:"level" yaml:"level"`
}

// TraceConfig controls span export.
type TraceConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// File receives one JSON document per exported span. Empty means
	// stderr.
	File string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Roster      []MemberConfig         `mapstructure:"roster" yaml:"roster"`
	Aliases     map[string]string      `mapstructure:"aliases" yaml:"aliases"`
	Routing     map[string]RouteConfig `mapstructure:"routing" yaml:"routing"`
	KitDigital  KitDigitalConfig       `mapstructure:"kit_digital" yaml:"kit_digital"`
	Sync        SyncConfig             `mapstructure:"sync" yaml:"sync"`
	Cache       CacheConfig            `mapstructure:"cache" yaml:"cache"`
	Store       StoreConfig            `mapstructure:"store" yaml:"store"`
	Credentials CredentialsConfig      `mapstructure:"credentials" yaml:"credentials"`
	Bridge      BridgeConfig           `mapstructure:"bridge" yaml:"bridge"`
	Mail        MailConfig             `mapstructure:"mail" yaml:"mail"`
	Log         LogConfig              `mapstructure:"log" yaml:"log"`
	Trace       TraceConfig            `mapstructure:"trace" yaml:"trace"`
}

// Identities returns the ids of every enabled roster member in roster order.
func (c *AppConfig) Identities() []string {
	ids := make([]string, 0, len(c.Roster))
	for _, m := range c.Roster {
		if m.Enabled && m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// Route returns the routing entry for an identity, if any.
func (c *AppConfig) Route(identity string) (RouteConfig, bool) {
	r, ok := c.Routing[strings.ToLower(identity)]
	return r, ok
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/studiosync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "studiosync", "config.yaml")
}

// defaultDataPath returns the default sqlite document store location.
func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "studiosync.db")
	}
	return filepath.Join(home, ".local", "share", "studiosync", "studiosync.db")
}

const defaultKitBoard = "b_kit_digital"

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Roster:  []MemberConfig{},
		Aliases: map[string]string{},
		Routing: map[string]RouteConfig{},
		KitDigital: KitDigitalConfig{
			Sender:      "noreply.dehu@correo.gob.es",
			BoardID:     defaultKitBoard,
			ColumnID:    TodoColumnID(defaultKitBoard),
			TitlePrefix: "KIT DIGITAL: ",
		},
		Sync: SyncConfig{
			IntervalSec:       120,
			InitialDelaySec:   5,
			FetchTimeoutSec:   60,
			Workers:           4,
			Folders:           []string{"INBOX", "Gestionados", "Enviados"},
			AutomationFolders: []string{"INBOX"},
		},
		Cache: CacheConfig{StaleAfterSec: 60},
		Store: StoreConfig{Path: defaultDataPath()},
		Credentials: CredentialsConfig{
			EnvFile: ".env",
		},
		Bridge: BridgeConfig{
			Kind:    BridgeExec,
			Command: []string{"python3", "fetch_mails.py"},
			TLS:     true,
		},
		Mail: MailConfig{
			ArchiveFolder:        "Gestionados",
			ProcessedCap:         500,
			DeletedRetentionDays: 30,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	def := DefaultAppConfig()
	v.SetDefault("kit_digital.sender", def.KitDigital.Sender)
	v.SetDefault("kit_digital.board_id", def.KitDigital.BoardID)
	v.SetDefault("kit_digital.title_prefix", def.KitDigital.TitlePrefix)
	v.SetDefault("sync.interval_sec", def.Sync.IntervalSec)
	v.SetDefault("sync.initial_delay_sec", def.Sync.InitialDelaySec)
	v.SetDefault("sync.fetch_timeout_sec", def.Sync.FetchTimeoutSec)
	v.SetDefault("sync.workers", def.Sync.Workers)
	v.SetDefault("sync.folders", def.Sync.Folders)
	v.SetDefault("sync.automation_folders", def.Sync.AutomationFolders)
	v.SetDefault("cache.stale_after_sec", def.Cache.StaleAfterSec)
	v.SetDefault("store.path", def.Store.Path)
	v.SetDefault("credentials.env_file", def.Credentials.EnvFile)
	v.SetDefault("bridge.kind", def.Bridge.Kind)
	v.SetDefault("bridge.command", def.Bridge.Command)
	v.SetDefault("bridge.tls", def.Bridge.TLS)
	v.SetDefault("mail.archive_folder", def.Mail.ArchiveFolder)
	v.SetDefault("mail.processed_cap", def.Mail.ProcessedCap)
	v.SetDefault("mail.deleted_retention_days", def.Mail.DeletedRetentionDays)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("trace.enabled", def.Trace.Enabled)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// The kit column defaults to the kit board's todo column.
	if cfg.KitDigital.ColumnID == "" {
		cfg.KitDigital.ColumnID = TodoColumnID(cfg.KitDigital.BoardID)
	}

	// Viper unmarshals missing bools as false; treat unset as true.
	raw, _ := v.Get("roster").([]any)
	for i := range cfg.Roster {
		if i >= len(raw) {
			break
		}
		entry, _ := raw[i].(map[string]any)
		if _, set := entry["enabled"]; !set {
			cfg.Roster[i].Enabled = true
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks invariants the sync subsystem relies on.
func (c *AppConfig) Validate() error {
	seen := make(map[string]bool, len(c.Roster))
	for _, m := range c.Roster {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("roster entry with empty id")
		}
		if seen[m.ID] {
			return fmt.Errorf("duplicate roster identity %q", m.ID)
		}
		seen[m.ID] = true
	}
	for id, r := range c.Routing {
		if r.BoardID == "" {
			return fmt.Errorf("routing for %q has no board_id", id)
		}
	}
	if c.KitDigital.BoardID == "" {
		return fmt.Errorf("kit_digital.board_id must be set")
	}
	switch c.Bridge.Kind {
	case BridgeExec:
		if len(c.Bridge.Command) == 0 {
			return fmt.Errorf("bridge.command must be set for exec bridge")
		}
	case BridgeIMAP:
	default:
		return fmt.Errorf("unknown bridge kind %q", c.Bridge.Kind)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("roster", cfg.Roster)
	v.Set("aliases", cfg.Aliases)
	v.Set("routing", cfg.Routing)
	v.Set("kit_digital", cfg.KitDigital)
	v.Set("sync", cfg.Sync)
	v.Set("cache", cfg.Cache)
	v.Set("store", cfg.Store)
	v.Set("credentials", cfg.Credentials)
	v.Set("bridge", cfg.Bridge)
	v.Set("mail", cfg.Mail)
	v.Set("log", cfg.Log)
	v.Set("trace", cfg.Trace)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
