package activity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/tests/testutil"
)

func TestNewEntry(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	e := NewEntry(model.ActivityMail, "hola", "", now)
	require.NotEmpty(t, e.ID)
	require.Equal(t, SystemActor, e.User)
	require.Equal(t, time.UTC, e.Timestamp.Location())
	require.True(t, e.Timestamp.Equal(now))

	e = NewEntry(model.ActivityCard, "x", "Montse", now)
	require.Equal(t, "Montse", e.User)
}

func TestLogKeepsNewestEntries(t *testing.T) {
	l := NewLog(testutil.NewTestStore(t))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, l.Append(ctx, model.ActivityMail,
			fmt.Sprintf("entry %d", i), ""))
	}

	entries, err := l.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, model.MaxActivityEntries)
	require.Equal(t, "entry 59", entries[0].Text)
	require.Equal(t, "entry 10", entries[len(entries)-1].Text)

	entries, err = l.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

// TestLogBoundProperty checks the log never exceeds its cap and always
// lists the latest append first.
func TestLogBoundProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		l := NewLog(testutil.NewTestStore(t))
		ctx := context.Background()

		n := rapid.IntRange(1, 80).Draw(rt, "appends")
		for i := 0; i < n; i++ {
			require.NoError(rt, l.Append(ctx, model.ActivityCard,
				fmt.Sprint(i), ""))
		}

		entries, err := l.Recent(ctx, 0)
		require.NoError(rt, err)
		require.Len(rt, entries, min(n, model.MaxActivityEntries))
		require.Equal(rt, fmt.Sprint(n-1), entries[0].Text)
	})
}
