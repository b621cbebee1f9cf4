// Package sync runs the periodic mailbox synchronization: on every tick it
// refreshes each identity's folders and feeds fresh INBOX batches to the
// automation engine.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	gosync "sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/studiosync/internal/automation"
	"github.com/nhle/studiosync/internal/mailcache"
	"github.com/nhle/studiosync/internal/model"
)

// SyncState represents the current state of an identity's sync.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncStatus holds the sync state for a single identity.
type SyncStatus struct {
	Identity string
	State    SyncState
	LastSync time.Time
	Error    error

	// Skipped is set when the last pass found no credentials.
	Skipped bool
}

const (
	defaultInterval     = 120 * time.Second
	defaultFetchTimeout = 60 * time.Second
	defaultWorkers      = 4
)

var tracer = otel.Tracer("github.com/nhle/studiosync/internal/sync")

// Refresher is the part of the mailbox cache the driver needs.
type Refresher interface {
	Refresh(
		ctx context.Context, identity, folder string,
	) ([]model.Message, error)
}

// Processor is the part of the automation engine the driver needs.
type Processor interface {
	Process(
		ctx context.Context, identity, folder string, msgs []model.Message,
	) automation.Result
}

// Config configures a Driver.
type Config struct {
	Cache  Refresher
	Engine Processor

	// Identities returns the roster to poll. It is called on every pass
	// so roster edits apply without a restart.
	Identities func() []string

	Folders           []string
	AutomationFolders []string

	Interval     time.Duration
	InitialDelay time.Duration
	FetchTimeout time.Duration
	Workers      int

	// Maintenance, if set, runs once per MaintenanceEvery.
	Maintenance      func(ctx context.Context) error
	MaintenanceEvery time.Duration

	Log *slog.Logger
}

// Driver orchestrates periodic passes over every identity. Passes for
// the same identity never overlap; a pass that finds the identity still
// in flight skips it.
type Driver struct {
	cfg Config
	log *slog.Logger

	triggerCh chan struct{}

	mu        gosync.Mutex
	statuses  map[string]*SyncStatus
	inFlight  map[string]bool
	running   bool
	lastMaint time.Time
}

// New creates a Driver.
func New(cfg Config) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if len(cfg.Folders) == 0 {
		cfg.Folders = []string{"INBOX"}
	}
	if cfg.AutomationFolders == nil {
		cfg.AutomationFolders = []string{"INBOX"}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Driver{
		cfg:       cfg,
		log:       log,
		triggerCh: make(chan struct{}, 1),
		statuses:  make(map[string]*SyncStatus),
		inFlight:  make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled. It waits InitialDelay, runs a pass,
// then runs one pass per Interval and on every RefreshAll.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("sync driver already running")
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	d.log.InfoContext(ctx, "Sync driver starting",
		"interval", d.cfg.Interval, "initial_delay", d.cfg.InitialDelay,
		"workers", d.cfg.Workers)

	if d.cfg.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.cfg.InitialDelay):
		}
	}

	d.RunPass(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Sync driver stopped")
			return nil
		case <-ticker.C:
			d.RunPass(ctx)
		case <-d.triggerCh:
			d.RunPass(ctx)
		}
	}
}

// RefreshAll requests an immediate pass. Requests made while one is
// already pending are coalesced.
func (d *Driver) RefreshAll() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

// RunPass runs one synchronous pass over every identity, at most Workers
// at a time. Once started, an identity's pass finishes even if ctx is
// cancelled; only its fetches are bounded by FetchTimeout.
func (d *Driver) RunPass(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "sync.RunPass")
	defer span.End()

	identities := d.cfg.Identities()
	span.SetAttributes(attribute.Int("identities", len(identities)))

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)

	for _, identity := range identities {
		if ctx.Err() != nil {
			break
		}
		if !d.acquire(identity) {
			d.log.DebugContext(ctx, "Identity still syncing, skipping",
				"identity", identity)
			continue
		}

		g.Go(func() error {
			defer d.release(identity)
			d.syncIdentity(context.WithoutCancel(ctx), identity)
			return nil
		})
	}

	_ = g.Wait()

	d.maybeMaintain(ctx)
}

// syncIdentity refreshes every folder of one identity and runs automations
// on the automation folders. A failing folder does not stop the others.
func (d *Driver) syncIdentity(ctx context.Context, identity string) {
	ctx, span := tracer.Start(ctx, "sync.Identity")
	span.SetAttributes(attribute.String("identity", identity))
	defer span.End()

	d.setStatus(identity, SyncRunning, nil, false)

	var lastErr error
	for _, folder := range d.cfg.Folders {
		msgs, err := d.refresh(ctx, identity, folder)
		if errors.Is(err, mailcache.ErrNoCredentials) {
			d.log.InfoContext(ctx, "No credentials, skipping identity",
				"identity", identity)
			d.setStatus(identity, SyncIdle, nil, true)
			return
		}
		if err != nil {
			d.log.WarnContext(ctx, "Folder sync failed",
				"identity", identity, "folder", folder, "err", err)
			lastErr = err
			continue
		}

		if !slices.Contains(d.cfg.AutomationFolders, folder) ||
			d.cfg.Engine == nil {

			continue
		}

		res := d.cfg.Engine.Process(ctx, identity, folder, msgs)
		if res.Failed > 0 {
			d.log.WarnContext(ctx, "Some automations failed",
				"identity", identity, "folder", folder,
				"failed", res.Failed)
		}
	}

	if lastErr != nil {
		span.SetStatus(codes.Error, lastErr.Error())
		d.setStatus(identity, SyncError, lastErr, false)
		return
	}
	d.setStatus(identity, SyncIdle, nil, false)
}

func (d *Driver) refresh(
	ctx context.Context, identity, folder string,
) ([]model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
	defer cancel()

	return d.cfg.Cache.Refresh(ctx, identity, folder)
}

// maybeMaintain runs the maintenance hook when it is due.
func (d *Driver) maybeMaintain(ctx context.Context) {
	if d.cfg.Maintenance == nil || ctx.Err() != nil {
		return
	}

	d.mu.Lock()
	due := d.lastMaint.IsZero() ||
		time.Since(d.lastMaint) >= d.cfg.MaintenanceEvery
	if due {
		d.lastMaint = time.Now()
	}
	d.mu.Unlock()

	if !due {
		return
	}
	if err := d.cfg.Maintenance(ctx); err != nil {
		d.log.WarnContext(ctx, "Maintenance failed", "err", err)
	}
}

func (d *Driver) acquire(identity string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inFlight[identity] {
		return false
	}
	d.inFlight[identity] = true
	return true
}

func (d *Driver) release(identity string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, identity)
}

// setStatus updates the sync status for an identity.
func (d *Driver) setStatus(
	identity string, state SyncState, err error, skipped bool,
) {
	d.mu.Lock()
	defer d.mu.Unlock()

	status, ok := d.statuses[identity]
	if !ok {
		status = &SyncStatus{Identity: identity}
		d.statuses[identity] = status
	}

	status.State = state
	status.Error = err
	status.Skipped = skipped
	if state == SyncIdle && err == nil && !skipped {
		status.LastSync = time.Now()
	}
}

// GetStatuses returns the current sync status of every identity seen so
// far, sorted by identity.
func (d *Driver) GetStatuses() []SyncStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(d.statuses))
	for _, s := range d.statuses {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Identity < statuses[j].Identity
	})
	return statuses
}
