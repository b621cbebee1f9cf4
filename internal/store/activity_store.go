package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/studiosync/internal/model"
)

// AppendActivity prepends an entry and trims the log to the newest
// model.MaxActivityEntries entries.
func (t *txn) AppendActivity(ctx context.Context, e model.ActivityEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO activity (id, type, text, user, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Text, e.User, e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		DELETE FROM activity WHERE seq NOT IN (
			SELECT seq FROM activity ORDER BY seq DESC LIMIT ?
		)`, model.MaxActivityEntries,
	)
	if err != nil {
		return fmt.Errorf("trimming activity: %w", err)
	}

	return nil
}

// ListActivity returns up to limit entries, newest first. A non-positive
// limit returns the whole log.
func (t *txn) ListActivity(
	ctx context.Context, limit int,
) ([]model.ActivityEntry, error) {
	if limit <= 0 || limit > model.MaxActivityEntries {
		limit = model.MaxActivityEntries
	}

	var entries []model.ActivityEntry
	err := t.tx.SelectContext(ctx, &entries, `
		SELECT id, type, text, user, timestamp FROM activity
		ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}

	return entries, nil
}
