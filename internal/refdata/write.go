package refdata

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aristath/keepbook/internal/domain"
)

func newID() string { return uuid.NewString() }

// UpsertConnection inserts or replaces a connection row. Synchronizers
// call this once per connection discovered during a sync; the core
// only ever reads what's already been persisted here.
func (s *Store) UpsertConnection(ctx context.Context, c domain.Connection) error {
	var lastSync any
	if c.LastSync != nil {
		lastSync = c.LastSync.Format(timeLayout)
	}
	var staleness any
	if c.BalanceStaleness != nil {
		staleness = int64(c.BalanceStaleness.Seconds())
	}

	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO connections (id, name, synchronizer, status, last_sync, balance_staleness_seconds)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, synchronizer = excluded.synchronizer, status = excluded.status,
			last_sync = excluded.last_sync, balance_staleness_seconds = excluded.balance_staleness_seconds`,
		c.ID, c.Name, c.Synchronizer, c.Status, lastSync, staleness)
	if err != nil {
		return fmt.Errorf("refdata: upsert connection: %w", err)
	}
	return nil
}

// UpsertAccount inserts or replaces an account row and its tag set.
func (s *Store) UpsertAccount(ctx context.Context, a domain.Account) error {
	var staleness any
	if a.BalanceStaleness != nil {
		staleness = int64(a.BalanceStaleness.Seconds())
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("refdata: begin upsert account: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, name, connection_id, created_at, active, balance_backfill, balance_staleness_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, connection_id = excluded.connection_id, active = excluded.active,
			balance_backfill = excluded.balance_backfill, balance_staleness_seconds = excluded.balance_staleness_seconds`,
		a.ID, a.Name, a.ConnectionID, a.CreatedAt.Format(timeLayout), boolToInt(a.Active), int(a.BalanceBackfill), staleness)
	if err != nil {
		return fmt.Errorf("refdata: upsert account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM account_tags WHERE account_id = ?`, a.ID); err != nil {
		return fmt.Errorf("refdata: clear account tags: %w", err)
	}
	for _, tag := range a.Tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO account_tags (account_id, tag) VALUES (?, ?)`, a.ID, tag); err != nil {
			return fmt.Errorf("refdata: insert account tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("refdata: commit upsert account: %w", err)
	}
	return nil
}

// RecordBalanceSnapshot persists a new, immutable balance snapshot for
// accountID. Snapshots are append-only: this never updates an existing
// row.
func (s *Store) RecordBalanceSnapshot(ctx context.Context, accountID string, snapshot domain.BalanceSnapshot) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("refdata: begin record balance snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := newID()
	if _, err := tx.ExecContext(ctx, `INSERT INTO balance_snapshots (id, account_id, timestamp) VALUES (?, ?, ?)`,
		id, accountID, snapshot.Timestamp.Format(timeLayout)); err != nil {
		return fmt.Errorf("refdata: insert balance snapshot: %w", err)
	}

	for _, balance := range snapshot.Balances {
		kind, code, venue := encodeAsset(balance.Asset)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balance_snapshot_lines (snapshot_id, asset_kind, asset_code, asset_venue, amount)
			VALUES (?, ?, ?, ?, ?)`, id, kind, code, venue, balance.Amount.String()); err != nil {
			return fmt.Errorf("refdata: insert balance snapshot line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("refdata: commit record balance snapshot: %w", err)
	}
	return nil
}

// RecordTransaction persists a transaction. Transaction ids are stable
// across syncs; ON CONFLICT treats a repeat id as an update
// to the mutable fields (status, description) rather than a duplicate.
func (s *Store) RecordTransaction(ctx context.Context, accountID string, t domain.Transaction) error {
	kind, code, venue := encodeAsset(t.Asset)
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, timestamp, amount, asset_kind, asset_code, asset_venue, description, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, description = excluded.description`,
		t.ID, accountID, t.Timestamp.Format(timeLayout), t.Amount.String(), kind, code, venue, t.Description, int(t.Status))
	if err != nil {
		return fmt.Errorf("refdata: insert transaction: %w", err)
	}
	return nil
}
