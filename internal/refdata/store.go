package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/utils"
)

const timeLayout = time.RFC3339Nano

// Store is the reference domain.AccountProvider implementation: a thin
// SQL layer over the embedded schema, with no business logic beyond
// decoding rows and folding annotation patches.
type Store struct {
	db  *DB
	log zerolog.Logger
}

// New wraps db as a Store.
func New(db *DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "refdata_store").Logger()}
}

var _ domain.AccountProvider = (*Store)(nil)

// ListAccounts implements domain.AccountProvider.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, name, connection_id, created_at, active, balance_backfill, balance_staleness_seconds
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("refdata: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		var createdAt string
		var active int
		var backfill int
		var stalenessSeconds sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Name, &a.ConnectionID, &createdAt, &active, &backfill, &stalenessSeconds); err != nil {
			return nil, fmt.Errorf("refdata: scan account: %w", err)
		}
		a.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("refdata: parse account created_at: %w", err)
		}
		a.Active = active != 0
		a.BalanceBackfill = domain.BackfillPolicy(backfill)
		if stalenessSeconds.Valid {
			d := time.Duration(stalenessSeconds.Int64) * time.Second
			a.BalanceStaleness = &d
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refdata: list accounts: %w", err)
	}

	for i := range accounts {
		tags, err := s.accountTags(ctx, accounts[i].ID)
		if err != nil {
			return nil, err
		}
		accounts[i].Tags = tags
	}
	return accounts, nil
}

func (s *Store) accountTags(ctx context.Context, accountID string) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT tag FROM account_tags WHERE account_id = ? ORDER BY tag`, accountID)
	if err != nil {
		return nil, fmt.Errorf("refdata: list account tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("refdata: scan account tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ListConnections implements domain.AccountProvider.
func (s *Store) ListConnections(ctx context.Context) ([]domain.Connection, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, name, synchronizer, status, last_sync, balance_staleness_seconds
		FROM connections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("refdata: list connections: %w", err)
	}
	defer rows.Close()

	var connections []domain.Connection
	for rows.Next() {
		var c domain.Connection
		var lastSync sql.NullString
		var stalenessSeconds sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Name, &c.Synchronizer, &c.Status, &lastSync, &stalenessSeconds); err != nil {
			return nil, fmt.Errorf("refdata: scan connection: %w", err)
		}
		if lastSync.Valid {
			t, err := time.Parse(timeLayout, lastSync.String)
			if err != nil {
				return nil, fmt.Errorf("refdata: parse connection last_sync: %w", err)
			}
			c.LastSync = &t
		}
		if stalenessSeconds.Valid {
			d := time.Duration(stalenessSeconds.Int64) * time.Second
			c.BalanceStaleness = &d
		}
		connections = append(connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refdata: list connections: %w", err)
	}

	for i := range connections {
		ids, err := s.accountIDsForConnection(ctx, connections[i].ID)
		if err != nil {
			return nil, err
		}
		connections[i].AccountIDs = ids
	}
	return connections, nil
}

func (s *Store) accountIDsForConnection(ctx context.Context, connectionID string) ([]string, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT id FROM accounts WHERE connection_id = ? ORDER BY id`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("refdata: list connection accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("refdata: scan connection account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BalanceSnapshots implements domain.AccountProvider, returning every
// snapshot for accountID ordered oldest-first.
func (s *Store) BalanceSnapshots(ctx context.Context, accountID string) ([]domain.BalanceSnapshot, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT id, timestamp FROM balance_snapshots
		WHERE account_id = ? ORDER BY timestamp ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("refdata: list balance snapshots: %w", err)
	}
	defer rows.Close()

	type snapshotRow struct {
		id        string
		timestamp string
	}
	var snapshotRows []snapshotRow
	for rows.Next() {
		var r snapshotRow
		if err := rows.Scan(&r.id, &r.timestamp); err != nil {
			return nil, fmt.Errorf("refdata: scan balance snapshot: %w", err)
		}
		snapshotRows = append(snapshotRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refdata: list balance snapshots: %w", err)
	}

	snapshots := make([]domain.BalanceSnapshot, 0, len(snapshotRows))
	for _, r := range snapshotRows {
		ts, err := time.Parse(timeLayout, r.timestamp)
		if err != nil {
			return nil, fmt.Errorf("refdata: parse balance snapshot timestamp: %w", err)
		}
		balances, err := s.snapshotLines(ctx, r.id)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, domain.BalanceSnapshot{Timestamp: ts, Balances: balances})
	}
	return snapshots, nil
}

func (s *Store) snapshotLines(ctx context.Context, snapshotID string) ([]domain.AssetBalance, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT asset_kind, asset_code, asset_venue, amount FROM balance_snapshot_lines
		WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("refdata: list balance snapshot lines: %w", err)
	}
	defer rows.Close()

	var balances []domain.AssetBalance
	for rows.Next() {
		var kind int
		var code, venue, amountStr string
		if err := rows.Scan(&kind, &code, &venue, &amountStr); err != nil {
			return nil, fmt.Errorf("refdata: scan balance snapshot line: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("refdata: parse balance snapshot line amount: %w", err)
		}
		balances = append(balances, domain.AssetBalance{Asset: decodeAsset(kind, code, venue), Amount: amount})
	}
	return balances, rows.Err()
}

// Transactions implements domain.AccountProvider: every transaction for
// accountID in [start, end) (either bound may be nil), with its
// annotation patch log folded into a materialized domain.Annotation.
func (s *Store) Transactions(ctx context.Context, accountID string, start, end *time.Time) ([]domain.Transaction, error) {
	done := utils.MeasureDBQuery("transactions_by_account", s.log)
	var rowCount int64
	defer func() { done(rowCount) }()

	var query strings.Builder
	query.WriteString(`SELECT id, timestamp, amount, asset_kind, asset_code, asset_venue, description, status
		FROM transactions WHERE account_id = ?`)
	args := []any{accountID}

	if start != nil {
		query.WriteString(` AND timestamp >= ?`)
		args = append(args, start.Format(timeLayout))
	}
	if end != nil {
		query.WriteString(` AND timestamp < ?`)
		args = append(args, end.Format(timeLayout))
	}
	query.WriteString(` ORDER BY timestamp ASC`)

	rows, err := s.db.conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("refdata: list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var ts, amountStr string
		var kind, status int
		var code, venue string
		if err := rows.Scan(&tx.ID, &ts, &amountStr, &kind, &code, &venue, &tx.Description, &status); err != nil {
			return nil, fmt.Errorf("refdata: scan transaction: %w", err)
		}
		tx.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("refdata: parse transaction timestamp: %w", err)
		}
		tx.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("refdata: parse transaction amount: %w", err)
		}
		tx.Asset = decodeAsset(kind, code, venue)
		tx.Status = domain.TransactionStatus(status)
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refdata: list transactions: %w", err)
	}
	rowCount = int64(len(transactions))

	for i := range transactions {
		annotation, err := s.materializeAnnotation(ctx, transactions[i].ID)
		if err != nil {
			return nil, err
		}
		transactions[i].Annotation = annotation
	}
	return transactions, nil
}
