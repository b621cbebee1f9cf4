package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/store"
	"github.com/nhle/studiosync/tests/testutil"
)

func TestBoardsAndCards(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	err := s.Update(ctx, func(tx store.Tx) error {
		board := model.Board{
			ID: "b_montse", Title: "Montse",
			Columns: model.CanonicalColumns("b_montse"),
		}
		if err := tx.EnsureBoard(ctx, board); err != nil {
			return err
		}

		// Ensuring twice keeps the board and adds nothing.
		return tx.EnsureBoard(ctx, board)
	})
	require.NoError(t, err)

	var created model.Card
	err = s.Update(ctx, func(tx store.Tx) error {
		var err error
		created, err = tx.CreateCard(ctx, model.Card{
			BoardID:  "b_montse",
			ColumnID: model.TodoColumnID("b_montse"),
			Title:    "Web nova",
			DescriptionBlocks: []model.DescriptionBlock{
				{ID: "desc_1", Type: "text", Text: "Detalls"},
			},
			Labels:    []string{"Montse"},
			CreatedAt: now,
		})
		if err != nil {
			return err
		}

		err = tx.AppendComment(ctx, created.ID, model.Comment{
			Author: "SISTEMA", Text: "Correu", Date: now, IsEmail: true,
		})
		if err != nil {
			return err
		}
		return tx.MoveCard(ctx, created.ID, model.RevisionColumnID("b_montse"))
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	err = s.View(ctx, func(tx store.Tx) error {
		board, err := tx.GetBoard(ctx, "b_montse")
		require.NoError(t, err)
		require.Len(t, board.Columns, 2)
		require.Equal(t, "Pendiente", board.Columns[0].Title)

		card, err := tx.GetCard(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, model.RevisionColumnID("b_montse"), card.ColumnID)
		require.Equal(t, []string{"Montse"}, card.Labels)
		require.Len(t, card.DescriptionBlocks, 1)
		require.Len(t, card.Comments, 1)
		require.True(t, card.Comments[0].IsEmail)
		require.NotEmpty(t, card.Comments[0].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	err := s.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetBoard(ctx, "nope")
		return err
	})
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.MoveCard(ctx, "nope", "c_todo_x")
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListCardsInsertionOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		for i := 0; i < 5; i++ {
			_, err := tx.CreateCard(ctx, model.Card{
				BoardID: "b", Title: fmt.Sprintf("card %d", i),
				CreatedAt: time.Now(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx store.Tx) error {
		cards, err := tx.ListCards(ctx)
		require.NoError(t, err)
		require.Len(t, cards, 5)
		for i, c := range cards {
			require.Equal(t, fmt.Sprintf("card %d", i), c.Title)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.RecordLedgerKey(ctx, "team_auto_montse_1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(tx store.Tx) error {
		ok, err := tx.HasLedgerKey(ctx, "team_auto_montse_1")
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestLedger(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.RecordLedgerKey(ctx, "auto_kit_1"))
		require.NoError(t, tx.RecordLedgerKey(ctx, "auto_kit_1"))
		require.NoError(t, tx.RecordLedgerKey(ctx, "team_auto_montse_1"))

		n, err := tx.CountLedgerKeys(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)
		return nil
	})
	require.NoError(t, err)
}

func TestActivityTrimmedToCap(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i := 0; i < model.MaxActivityEntries+10; i++ {
		err := s.Update(ctx, func(tx store.Tx) error {
			return tx.AppendActivity(ctx, model.ActivityEntry{
				Type: model.ActivityMail,
				Text: fmt.Sprintf("entry %d", i),
				User: "Sistema",
			})
		})
		require.NoError(t, err)
	}

	err := s.View(ctx, func(tx store.Tx) error {
		entries, err := tx.ListActivity(ctx, 0)
		require.NoError(t, err)
		require.Len(t, entries, model.MaxActivityEntries)
		require.Equal(t, fmt.Sprintf("entry %d", model.MaxActivityEntries+9),
			entries[0].Text)
		require.Equal(t, "entry 10", entries[len(entries)-1].Text)
		return nil
	})
	require.NoError(t, err)
}

func TestMailIDSets(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := s.Update(ctx, func(tx store.Tx) error {
		for i := 0; i < 4; i++ {
			added, err := tx.AddMailID(ctx, store.MailSetProcessed,
				store.MailIDEntry{
					ID:        fmt.Sprint(i),
					CreatedAt: base.Add(time.Duration(i) * time.Hour),
				}, 3)
			require.NoError(t, err)
			require.True(t, added)
		}

		added, err := tx.AddMailID(ctx, store.MailSetProcessed,
			store.MailIDEntry{ID: "3"}, 3)
		require.NoError(t, err)
		require.False(t, added)

		// Sets are independent.
		added, err = tx.AddMailID(ctx, store.MailSetSpam,
			store.MailIDEntry{ID: "3", CreatedAt: base}, 0)
		require.NoError(t, err)
		require.True(t, added)

		ids, err := tx.ListMailIDs(ctx, store.MailSetProcessed)
		require.NoError(t, err)
		require.Len(t, ids, 3)
		require.Equal(t, "1", ids[0].ID)

		n, err := tx.PurgeMailIDs(ctx, store.MailSetProcessed,
			base.Add(150*time.Minute))
		require.NoError(t, err)
		require.Equal(t, 2, n)

		removed, err := tx.RemoveMailID(ctx, store.MailSetSpam, "3")
		require.NoError(t, err)
		require.True(t, removed)
		return nil
	})
	require.NoError(t, err)
}

func TestAttachmentJobsDeduplicate(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	job := store.AttachmentJob{
		Identity: "montse", Folder: "INBOX", ExternalID: "9",
		Filenames: []string{"a.pdf"},
	}

	err := s.Update(ctx, func(tx store.Tx) error {
		added, err := tx.EnqueueAttachments(ctx, job)
		require.NoError(t, err)
		require.True(t, added)

		added, err = tx.EnqueueAttachments(ctx, job)
		require.NoError(t, err)
		require.False(t, added)
		return nil
	})
	require.NoError(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "studiosync.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	err = s.Update(ctx, func(tx store.Tx) error {
		return tx.RecordLedgerKey(ctx, "auto_kit_5")
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	err = s.View(ctx, func(tx store.Tx) error {
		ok, err := tx.HasLedgerKey(ctx, "auto_kit_5")
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}
