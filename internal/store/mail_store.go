package store

import (
	"context"
	"fmt"
	"time"
)

// AddMailID inserts an id into a set. Adding an existing id is a no-op and
// reports false.
func (t *txn) AddMailID(
	ctx context.Context, set MailSet, entry MailIDEntry, limit int,
) (bool, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO mail_ids (set_name, id, subject, actor, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(set_name, id) DO NOTHING`,
		string(set), entry.ID, entry.Subject, entry.Actor,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("adding %s to %s set: %w", entry.ID, set, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	if limit > 0 {
		_, err = t.tx.ExecContext(ctx, `
			DELETE FROM mail_ids WHERE set_name = ? AND seq NOT IN (
				SELECT seq FROM mail_ids WHERE set_name = ?
				ORDER BY seq DESC LIMIT ?
			)`, string(set), string(set), limit,
		)
		if err != nil {
			return true, fmt.Errorf("trimming %s set: %w", set, err)
		}
	}

	return true, nil
}

// RemoveMailID deletes an id from a set.
func (t *txn) RemoveMailID(
	ctx context.Context, set MailSet, id string,
) (bool, error) {
	result, err := t.tx.ExecContext(ctx,
		"DELETE FROM mail_ids WHERE set_name = ? AND id = ?", string(set), id)
	if err != nil {
		return false, fmt.Errorf("removing %s from %s set: %w", id, set, err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListMailIDs returns the members of a set in insertion order.
func (t *txn) ListMailIDs(
	ctx context.Context, set MailSet,
) ([]MailIDEntry, error) {
	var entries []MailIDEntry
	err := t.tx.SelectContext(ctx, &entries, `
		SELECT id, subject, actor, created_at FROM mail_ids
		WHERE set_name = ? ORDER BY seq`, string(set))
	if err != nil {
		return nil, fmt.Errorf("querying %s set: %w", set, err)
	}
	return entries, nil
}

// PurgeMailIDs drops members added before the cutoff.
func (t *txn) PurgeMailIDs(
	ctx context.Context, set MailSet, before time.Time,
) (int, error) {
	result, err := t.tx.ExecContext(ctx,
		"DELETE FROM mail_ids WHERE set_name = ? AND created_at < ?",
		string(set), before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging %s set: %w", set, err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}
