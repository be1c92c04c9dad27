// Package refdata is a reference (non-core) SQLite-backed implementation
// of the account/connection/transaction collaborator interfaces keepbook's
// core depends on (domain.AccountProvider), so cmd/server and integration
// tests have something concrete to query against. Nothing in
// internal/marketdata, internal/portfolio, internal/changepoint, or
// internal/spending imports this package directly; they only see the
// domain.AccountProvider interface.
package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Profile picks a WAL/PRAGMA tuning scheme for a SQLite connection,
// tuned per profile below.
type Profile string

const (
	// ProfileLedger: maximum durability, for the append-only
	// transaction and balance-snapshot tables.
	ProfileLedger Profile = "ledger"
	// ProfileStandard: balanced durability/speed, for mutable
	// reference rows (accounts, connections, annotations).
	ProfileStandard Profile = "standard"
)

// DB wraps a *sql.DB with the profile it was opened with.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
}

// Config configures Open.
type Config struct {
	Path    string
	Profile Profile
}

// Open creates the parent directory (unless path is a file: URI, used
// for in-memory test databases) and opens a profile-tuned connection.
func Open(cfg Config) (*DB, error) {
	if !strings.HasPrefix(cfg.Path, "file:") {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("refdata: resolve db path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("refdata: create db directory: %w", err)
		}
		cfg.Path = absPath
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", buildConnectionString(cfg.Path, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("refdata: open database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("refdata: ping database: %w", err)
	}

	return &DB{conn: conn, path: cfg.Path, profile: cfg.Profile}, nil
}

func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileLedger:
		connStr += "&_pragma=synchronous(FULL)"
		connStr += "&_pragma=auto_vacuum(NONE)"
	default: // ProfileStandard
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}

	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=busy_timeout(5000)"
	connStr += "&_pragma=cache_size(-64000)"
	return connStr
}

// Conn returns the underlying *sql.DB.
func (db *DB) Conn() *sql.DB { return db.conn }

// Close closes the connection.
func (db *DB) Close() error { return db.conn.Close() }

// Migrate applies the embedded schema. Safe to call repeatedly: every
// statement is CREATE ... IF NOT EXISTS.
func (db *DB) Migrate(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("refdata: begin migration: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("refdata: apply schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("refdata: commit migration: %w", err)
	}
	return nil
}
