package store

import (
	"context"
	"fmt"
	"time"
)

// HasLedgerKey reports whether an automation decision was already recorded.
func (t *txn) HasLedgerKey(ctx context.Context, key string) (bool, error) {
	var n int
	err := t.tx.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM automation_ledger WHERE key = ?", key)
	if err != nil {
		return false, fmt.Errorf("checking ledger key %s: %w", key, err)
	}
	return n > 0, nil
}

// RecordLedgerKey records an automation decision.
func (t *txn) RecordLedgerKey(ctx context.Context, key string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO automation_ledger (key, recorded_at) VALUES (?, ?)
		ON CONFLICT(key) DO NOTHING`,
		key, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording ledger key %s: %w", key, err)
	}
	return nil
}

// CountLedgerKeys returns the number of recorded decisions.
func (t *txn) CountLedgerKeys(ctx context.Context) (int, error) {
	var n int
	if err := t.tx.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM automation_ledger"); err != nil {

		return 0, fmt.Errorf("counting ledger keys: %w", err)
	}
	return n, nil
}
