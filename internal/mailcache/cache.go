// Package mailcache keeps the most recent message list per (identity,
// folder) and refreshes it from the mail bridge.
package mailcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nhle/studiosync/internal/credential"
	"github.com/nhle/studiosync/internal/fetcher"
	"github.com/nhle/studiosync/internal/model"
)

// DefaultStaleAfter is the age after which an entry is served but
// refreshed in the background.
const DefaultStaleAfter = 60 * time.Second

// ErrNoCredentials is returned when an identity has no usable secrets. It
// wraps credential.ErrMissing.
var ErrNoCredentials = fmt.Errorf("mailcache: %w", credential.ErrMissing)

// Key addresses one cached folder.
type Key struct {
	Identity string
	Folder   string
}

func (k Key) String() string {
	return k.Identity + "|" + k.Folder
}

// Entry is one cached folder listing. Entries are replaced whole, never
// edited in place, so a reader never sees a half-updated list.
type Entry struct {
	Messages  []model.Message
	FetchedAt time.Time
}

// Stale reports whether the entry is older than threshold at now.
func (e Entry) Stale(now time.Time, threshold time.Duration) bool {
	return now.Sub(e.FetchedAt) > threshold
}

// Config configures a Cache.
type Config struct {
	Resolver *credential.Resolver
	Fetcher  fetcher.Fetcher

	// StaleAfter defaults to DefaultStaleAfter.
	StaleAfter time.Duration

	// FetchTimeout bounds background refreshes. Zero leaves them bounded
	// by the fetcher alone.
	FetchTimeout time.Duration

	Log *slog.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Cache is the in-memory mailbox cache. It is safe for concurrent use.
type Cache struct {
	resolver     *credential.Resolver
	fetcher      fetcher.Fetcher
	staleAfter   time.Duration
	fetchTimeout time.Duration
	log          *slog.Logger
	clock        func() time.Time

	mu      sync.RWMutex
	entries map[Key]Entry

	group singleflight.Group

	// bg tracks background refreshes so Close can wait for them.
	bg     sync.WaitGroup
	quit   chan struct{}
	closed sync.Once
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	return &Cache{
		resolver:     cfg.Resolver,
		fetcher:      cfg.Fetcher,
		staleAfter:   staleAfter,
		fetchTimeout: cfg.FetchTimeout,
		log:          log,
		clock:        clock,
		entries:      make(map[Key]Entry),
		quit:         make(chan struct{}),
	}
}

// Get returns the cached entry without triggering a fetch.
func (c *Cache) Get(identity, folder string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[Key{Identity: identity, Folder: folder}]
	return e, ok
}

// Refresh fetches the folder and atomically replaces its entry. On failure
// the previous entry is kept and the error returned. Concurrent refreshes
// of the same key share one fetch.
func (c *Cache) Refresh(
	ctx context.Context, identity, folder string,
) ([]model.Message, error) {
	key := Key{Identity: identity, Folder: folder}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		return c.refresh(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	return v.([]model.Message), nil
}

func (c *Cache) refresh(ctx context.Context, key Key) ([]model.Message, error) {
	creds := c.resolver.Resolve(key.Identity)
	if creds.IsNone() {
		return nil, ErrNoCredentials
	}

	msgs, err := c.fetcher.Fetch(ctx, creds.UnwrapOr(model.Credentials{}), key.Folder)
	if err != nil {
		c.log.WarnContext(ctx, "Mailbox fetch failed, keeping cached entry",
			"identity", key.Identity, "folder", key.Folder, "err", err)
		return nil, err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}

	c.mu.Lock()
	c.entries[key] = Entry{Messages: msgs, FetchedAt: c.clock()}
	c.mu.Unlock()

	c.log.DebugContext(ctx, "Mailbox cache refreshed",
		"identity", key.Identity, "folder", key.Folder,
		"messages", len(msgs))

	return msgs, nil
}

// Read returns the folder listing for display. A fresh entry is served
// as is. A stale entry is served immediately and refreshed in the
// background. A miss fetches synchronously.
func (c *Cache) Read(
	ctx context.Context, identity, folder string,
) ([]model.Message, error) {
	if e, ok := c.Get(identity, folder); ok {
		if e.Stale(c.clock(), c.staleAfter) {
			c.ScheduleRefresh(identity, folder)
		}
		return e.Messages, nil
	}

	return c.Refresh(ctx, identity, folder)
}

// ScheduleRefresh refreshes a folder in the background. Failures are
// logged only.
func (c *Cache) ScheduleRefresh(identity, folder string) {
	select {
	case <-c.quit:
		return
	default:
	}

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()

		ctx, cancel := c.backgroundContext()
		defer cancel()

		_, err := c.Refresh(ctx, identity, folder)
		switch {
		case errors.Is(err, ErrNoCredentials):
			c.log.Info("Skipping background refresh, no credentials",
				"identity", identity)
		case err != nil:
			c.log.Warn("Background refresh failed",
				"identity", identity, "folder", folder, "err", err)
		}
	}()
}

// backgroundContext returns a context cancelled by Close or the fetch
// timeout, whichever comes first.
func (c *Cache) backgroundContext() (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.fetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.fetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	go func() {
		select {
		case <-c.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// RemoveMessage drops one message from a cached entry, returning whether it
// was present. The entry's fetch time is kept.
func (c *Cache) RemoveMessage(identity, folder string, id model.ExternalID) bool {
	key := Key{Identity: identity, Folder: folder}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}

	idx := slices.IndexFunc(e.Messages, func(m model.Message) bool {
		return m.ExternalID == id
	})
	if idx < 0 {
		return false
	}

	c.entries[key] = Entry{
		Messages:  slices.Delete(slices.Clone(e.Messages), idx, idx+1),
		FetchedAt: e.FetchedAt,
	}
	return true
}

// Invalidate drops an entry.
func (c *Cache) Invalidate(identity, folder string) {
	c.mu.Lock()
	delete(c.entries, Key{Identity: identity, Folder: folder})
	c.mu.Unlock()
}

// Keys returns the cached keys.
func (c *Cache) Keys() []Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Wait blocks until every scheduled background refresh has finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

// Close cancels background refreshes and waits for them to exit.
func (c *Cache) Close() {
	c.closed.Do(func() { close(c.quit) })
	c.bg.Wait()
}
