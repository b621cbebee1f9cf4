// Package activity keeps the bounded, newest-first log of automation-driven
// state changes.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/studiosync/internal/model"
	"github.com/nhle/studiosync/internal/store"
)

// SystemActor is used when an entry has no human author.
const SystemActor = "Sistema"

// NewEntry builds a timestamped entry ready to append.
func NewEntry(typ, text, actor string, now time.Time) model.ActivityEntry {
	if actor == "" {
		actor = SystemActor
	}
	return model.ActivityEntry{
		ID:        uuid.New().String(),
		Type:      typ,
		Text:      text,
		User:      actor,
		Timestamp: now.UTC(),
	}
}

// Log appends to and reads the activity log of a store.
type Log struct {
	store store.Store
	clock func() time.Time
}

// NewLog creates an activity log over s.
func NewLog(s store.Store) *Log {
	return &Log{store: s, clock: time.Now}
}

// Append records an entry in its own transaction. The log is trimmed to
// model.MaxActivityEntries in the same write.
func (l *Log) Append(ctx context.Context, typ, text, actor string) error {
	entry := NewEntry(typ, text, actor, l.clock())
	return l.store.Update(ctx, func(tx store.Tx) error {
		return tx.AppendActivity(ctx, entry)
	})
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(
	ctx context.Context, limit int,
) ([]model.ActivityEntry, error) {
	var entries []model.ActivityEntry
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.ListActivity(ctx, limit)
		return err
	})
	return entries, err
}
