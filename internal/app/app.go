// Package app assembles the sync subsystem from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/studiosync/internal/activity"
	"github.com/nhle/studiosync/internal/automation"
	"github.com/nhle/studiosync/internal/credential"
	"github.com/nhle/studiosync/internal/fetcher"
	"github.com/nhle/studiosync/internal/mailcache"
	"github.com/nhle/studiosync/internal/mailops"
	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/store"
	appsync "github.com/nhle/studiosync/internal/sync"
)

// purgeEvery is how often deleted ids past retention are dropped.
const purgeEvery = 24 * time.Hour

// App holds every long-lived component. Close releases them.
type App struct {
	Config   *model.AppConfig
	Store    store.Store
	Resolver *credential.Resolver
	Bridge   fetcher.Bridge
	Cache    *mailcache.Cache
	Engine   *automation.Engine
	Mail     *mailops.Service
	Activity *activity.Log
	Driver   *appsync.Driver

	log *slog.Logger
}

// Options overrides pieces normally built from configuration.
type Options struct {
	Log *slog.Logger

	// Store replaces the sqlite store at cfg.Store.Path.
	Store store.Store

	// Bridge replaces the configured mail bridge.
	Bridge fetcher.Bridge

	// Sources replaces the credential sources.
	Sources []credential.Source
}

// New builds an App.
func New(cfg *model.AppConfig, opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	st := opts.Store
	if st == nil {
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		st = s
	}

	sources := opts.Sources
	if sources == nil {
		var err error
		sources, err = credentialSources(cfg.Credentials, log)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	resolver := credential.NewResolver(cfg.Aliases, sources...)

	bridge := opts.Bridge
	if bridge == nil {
		bridge = newBridge(cfg, log)
	}

	cache := mailcache.New(mailcache.Config{
		Resolver:     resolver,
		Fetcher:      bridge,
		StaleAfter:   cfg.Cache.StaleAfter(),
		FetchTimeout: cfg.Sync.FetchTimeout(),
		Log:          log.With("component", "mailcache"),
	})

	engine := automation.New(automation.Config{
		Store:      st,
		KitDigital: cfg.KitDigital,
		Routing:    cfg.Routing,
		Log:        log.With("component", "automation"),
	})

	mail := mailops.New(mailops.Config{
		Resolver:         resolver,
		Mover:            bridge,
		Cache:            cache,
		Store:            st,
		ArchiveFolder:    cfg.Mail.ArchiveFolder,
		ProcessedCap:     cfg.Mail.ProcessedCap,
		DeletedRetention: cfg.Mail.DeletedRetention(),
		Log:              log.With("component", "mailops"),
	})

	a := &App{
		Config:   cfg,
		Store:    st,
		Resolver: resolver,
		Bridge:   bridge,
		Cache:    cache,
		Engine:   engine,
		Mail:     mail,
		Activity: activity.NewLog(st),
		log:      log,
	}

	a.Driver = appsync.New(appsync.Config{
		Cache:             cache,
		Engine:            engine,
		Identities:        cfg.Identities,
		Folders:           cfg.Sync.Folders,
		AutomationFolders: cfg.Sync.AutomationFolders,
		Interval:          cfg.Sync.Interval(),
		InitialDelay:      cfg.Sync.InitialDelay(),
		FetchTimeout:      cfg.Sync.FetchTimeout(),
		Workers:           cfg.Sync.Workers,
		Maintenance:       a.maintain,
		MaintenanceEvery:  purgeEvery,
		Log:               log.With("component", "sync"),
	})

	return a, nil
}

// Start seeds the boards the automations write to.
func (a *App) Start(ctx context.Context) error {
	if err := a.Engine.EnsureBoards(ctx); err != nil {
		return fmt.Errorf("seeding boards: %w", err)
	}
	return nil
}

// maintain runs periodic housekeeping.
func (a *App) maintain(ctx context.Context) error {
	_, err := a.Mail.PurgeDeleted(ctx)
	return err
}

// Close stops background work and closes the store.
func (a *App) Close() error {
	a.Cache.Close()
	return a.Store.Close()
}

// credentialSources returns the lookup chain: process environment, then
// the dotenv file, then optionally the OS keyring.
func credentialSources(
	cfg model.CredentialsConfig, log *slog.Logger,
) ([]credential.Source, error) {
	sources := []credential.Source{credential.EnvSource{}}

	env, err := credential.LoadEnvFile(cfg.EnvFile)
	if err != nil {
		return nil, err
	}
	sources = append(sources, env)

	if cfg.UseKeyring {
		ring, err := credential.NewKeyringSource()
		if err != nil {
			// Environment sources still work without a keyring.
			log.Warn("Keyring unavailable", "err", err)
		} else {
			sources = append(sources, ring)
		}
	}

	return sources, nil
}

func newBridge(cfg *model.AppConfig, log *slog.Logger) fetcher.Bridge {
	switch cfg.Bridge.Kind {
	case model.BridgeIMAP:
		return fetcher.NewIMAPBridge(fetcher.IMAPConfig{
			TLS:     cfg.Bridge.TLS,
			Timeout: cfg.Sync.FetchTimeout(),
		})
	default:
		return fetcher.NewExecBridge(fetcher.ExecConfig{
			Command: cfg.Bridge.Command,
			Timeout: cfg.Sync.FetchTimeout(),
			Log:     log.With("component", "bridge"),
		})
	}
}

// ErrUnknownIdentity is returned for identities missing from the roster.
var ErrUnknownIdentity = errors.New("identity not in roster")

// CheckIdentity reports whether identity is an enabled roster member.
func (a *App) CheckIdentity(identity string) error {
	for _, id := range a.Config.Identities() {
		if id == identity {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownIdentity, identity)
}
