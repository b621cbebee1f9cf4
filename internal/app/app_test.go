package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nhle/studiosync/internal/credential"
	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/store"
	"github.com/nhle/studiosync/tests/testutil"
)

func newTestApp(t *testing.T) (*App, *testutil.FakeBridge) {
	t.Helper()

	cfg := model.DefaultAppConfig()
	cfg.Roster = []model.MemberConfig{
		{ID: "montse", Enabled: true},
		{ID: "alba", Enabled: true},
	}
	cfg.Routing = map[string]model.RouteConfig{
		"montse": {BoardID: "b_montse", Name: "Montse"},
	}
	cfg.Sync.InitialDelaySec = 0

	bridge := testutil.NewFakeBridge()
	a, err := New(cfg, Options{
		Store:  testutil.NewTestStore(t),
		Bridge: bridge,
		Sources: []credential.Source{credential.MapSource{
			"IMAP_USER_MONTSE": "montse",
			"IMAP_PASS_MONTSE": "pw",
		}},
	})
	require.NoError(t, err)
	t.Cleanup(a.Cache.Close)

	require.NoError(t, a.Start(context.Background()))

	return a, bridge
}

func TestStartSeedsBoards(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	err := a.Store.View(ctx, func(tx store.Tx) error {
		for _, id := range []string{"b_montse", "b_kit_digital"} {
			board, err := tx.GetBoard(ctx, id)
			require.NoError(t, err)
			require.Len(t, board.Columns, 2)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSyncPassEndToEnd(t *testing.T) {
	a, bridge := newTestApp(t)
	ctx := context.Background()

	bridge.SetFolder("montse", "INBOX", model.Message{
		ExternalID: "501",
		From:       "client@example.com",
		Subject:    "Cartell festa major",
	})

	a.Driver.RunPass(ctx)

	// alba has no credentials and is never fetched.
	require.Zero(t, bridge.Fetches("alba", "INBOX"))

	var cards []model.Card
	err := a.Store.View(ctx, func(tx store.Tx) error {
		var err error
		cards, err = tx.ListCards(ctx)
		return err
	})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, "Cartell festa major", cards[0].Title)

	entries, err := a.Activity.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// A second pass over the same mailbox changes nothing.
	a.Driver.RunPass(ctx)
	err = a.Store.View(ctx, func(tx store.Tx) error {
		var err error
		cards, err = tx.ListCards(ctx)
		return err
	})
	require.NoError(t, err)
	require.Len(t, cards, 1)

	require.NoError(t, a.Mail.Archive(ctx, "montse", "501"))
	a.Cache.Wait()

	e, ok := a.Cache.Get("montse", "INBOX")
	require.True(t, ok)
	require.Empty(t, e.Messages)
}

func TestCheckIdentity(t *testing.T) {
	a, _ := newTestApp(t)

	require.NoError(t, a.CheckIdentity("montse"))
	require.ErrorIs(t, a.CheckIdentity("ghost"), ErrUnknownIdentity)
}
