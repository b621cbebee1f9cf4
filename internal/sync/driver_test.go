package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/studiosync/internal/automation"
	"github.com/nhle/studiosync/internal/mailcache"
	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/tests/testutil"
)

// recordingEngine captures the batches handed to it.
type recordingEngine struct {
	mu      gosync.Mutex
	batches map[string][]model.Message
}

func (r *recordingEngine) Process(
	_ context.Context, identity, folder string, msgs []model.Message,
) automation.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.batches == nil {
		r.batches = make(map[string][]model.Message)
	}
	r.batches[identity+"/"+folder] = msgs
	return automation.Result{}
}

func (r *recordingEngine) batch(key string) ([]model.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[key]
	return b, ok
}

func newTestDriver(
	t *testing.T, roster []string, withCreds ...string,
) (*Driver, *testutil.FakeBridge, *recordingEngine) {
	t.Helper()

	bridge := testutil.NewFakeBridge()
	cache := mailcache.New(mailcache.Config{
		Resolver: testutil.NewTestResolver(withCreds...),
		Fetcher:  bridge,
	})
	t.Cleanup(cache.Close)

	engine := &recordingEngine{}
	d := New(Config{
		Cache:             cache,
		Engine:            engine,
		Identities:        func() []string { return roster },
		Folders:           []string{"INBOX", "Gestionados", "Enviados"},
		AutomationFolders: []string{"INBOX"},
		Workers:           2,
	})

	return d, bridge, engine
}

func TestRunPassFeedsInboxToEngine(t *testing.T) {
	d, bridge, engine := newTestDriver(t,
		[]string{"montse", "alba"}, "montse", "alba")

	bridge.SetFolder("montse", "INBOX", model.Message{ExternalID: "1"})
	bridge.SetFolder("montse", "Gestionados", model.Message{ExternalID: "2"})
	bridge.SetFolder("alba", "INBOX", model.Message{ExternalID: "3"})

	d.RunPass(context.Background())

	for _, id := range []string{"montse", "alba"} {
		for _, folder := range []string{"INBOX", "Gestionados", "Enviados"} {
			require.Equal(t, 1, bridge.Fetches(id, folder), id+"/"+folder)
		}
	}

	b, ok := engine.batch("montse/INBOX")
	require.True(t, ok)
	require.Len(t, b, 1)

	_, ok = engine.batch("montse/Gestionados")
	require.False(t, ok)

	statuses := d.GetStatuses()
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		require.Equal(t, SyncIdle, s.State)
		require.False(t, s.LastSync.IsZero())
	}
}

func TestRunPassSkipsIdentityWithoutCredentials(t *testing.T) {
	d, bridge, engine := newTestDriver(t,
		[]string{"montse", "ghost"}, "montse")

	d.RunPass(context.Background())

	require.Equal(t, 3, bridge.TotalFetches())
	_, ok := engine.batch("ghost/INBOX")
	require.False(t, ok)

	for _, s := range d.GetStatuses() {
		if s.Identity == "ghost" {
			require.True(t, s.Skipped)
			require.Equal(t, SyncIdle, s.State)
			require.True(t, s.LastSync.IsZero())
		}
	}
}

func TestRunPassFolderFailureIsIsolated(t *testing.T) {
	d, bridge, engine := newTestDriver(t, []string{"montse"}, "montse")

	bridge.SetFolder("montse", "INBOX", model.Message{ExternalID: "1"})
	bridge.FailFetch("montse", "Gestionados", errors.New("timeout"))

	d.RunPass(context.Background())

	_, ok := engine.batch("montse/INBOX")
	require.True(t, ok)
	require.Equal(t, 1, bridge.Fetches("montse", "Enviados"))

	statuses := d.GetStatuses()
	require.Len(t, statuses, 1)
	require.Equal(t, SyncError, statuses[0].State)
	require.Error(t, statuses[0].Error)
}

func TestRunPassSkipsIdentityInFlight(t *testing.T) {
	d, bridge, _ := newTestDriver(t, []string{"montse"}, "montse")

	require.True(t, d.acquire("montse"))
	d.RunPass(context.Background())
	require.Zero(t, bridge.TotalFetches())

	d.release("montse")
	d.RunPass(context.Background())
	require.Equal(t, 3, bridge.TotalFetches())
}

func TestRunPassRunsMaintenanceWhenDue(t *testing.T) {
	d, _, _ := newTestDriver(t, nil)

	var runs atomic.Int32
	d.cfg.Maintenance = func(context.Context) error {
		runs.Add(1)
		return nil
	}
	d.cfg.MaintenanceEvery = time.Hour

	d.RunPass(context.Background())
	d.RunPass(context.Background())
	require.EqualValues(t, 1, runs.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	d, bridge, _ := newTestDriver(t, []string{"montse"}, "montse")
	d.cfg.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return bridge.TotalFetches() == 3
	}, 5*time.Second, 10*time.Millisecond)

	d.RefreshAll()
	require.Eventually(t, func() bool {
		return bridge.TotalFetches() == 6
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not stop")
	}
}
