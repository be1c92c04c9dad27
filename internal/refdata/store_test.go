package refdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(Config{Path: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return New(db, zerolog.Nop())
}

func TestUpsertAccountAndListAccountsRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	staleness := 3 * 24 * time.Hour
	require.NoError(t, store.UpsertConnection(ctx, domain.Connection{ID: "conn-1", Name: "Bank", Synchronizer: "manual"}))
	require.NoError(t, store.UpsertAccount(ctx, domain.Account{
		ID: "acct-1", Name: "Checking", ConnectionID: "conn-1", Tags: []string{"cash", "daily"},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Active: true,
		BalanceStaleness: &staleness,
	}))

	accounts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "Checking", accounts[0].Name)
	require.Equal(t, []string{"cash", "daily"}, accounts[0].Tags)
	require.NotNil(t, accounts[0].BalanceStaleness)
	require.Equal(t, staleness, *accounts[0].BalanceStaleness)
}

func TestListConnectionsIncludesAccountIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertConnection(ctx, domain.Connection{ID: "conn-1", Name: "Bank", Synchronizer: "manual"}))
	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1", CreatedAt: time.Now()}))
	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acct-2", Name: "Savings", ConnectionID: "conn-1", CreatedAt: time.Now()}))

	connections, err := store.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, connections, 1)
	require.Equal(t, []string{"acct-1", "acct-2"}, connections[0].AccountIDs)
}

func TestRecordBalanceSnapshotRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertConnection(ctx, domain.Connection{ID: "conn-1", Name: "Bank", Synchronizer: "manual"}))
	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1", CreatedAt: time.Now()}))

	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordBalanceSnapshot(ctx, "acct-1", domain.BalanceSnapshot{
		Timestamp: ts,
		Balances: []domain.AssetBalance{
			{Asset: asset.Currency("USD"), Amount: decimal.RequireFromString("1250.50")},
			{Asset: asset.Equity("AAPL", "XNAS"), Amount: decimal.RequireFromString("10")},
		},
	}))

	snapshots, err := store.BalanceSnapshots(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.True(t, snapshots[0].Timestamp.Equal(ts))
	require.Len(t, snapshots[0].Balances, 2)
}

func TestTransactionsFiltersByDateRangeAndFoldsAnnotations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertConnection(ctx, domain.Connection{ID: "conn-1", Name: "Bank", Synchronizer: "manual"}))
	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1", CreatedAt: time.Now()}))

	early := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	late := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordTransaction(ctx, "acct-1", domain.Transaction{
		ID: "tx-early", Timestamp: early, Amount: decimal.RequireFromString("-10"),
		Asset: asset.Currency("USD"), Description: "Early", Status: domain.StatusPosted,
	}))
	require.NoError(t, store.RecordTransaction(ctx, "acct-1", domain.Transaction{
		ID: "tx-late", Timestamp: late, Amount: decimal.RequireFromString("-20"),
		Asset: asset.Currency("USD"), Description: "Late", Status: domain.StatusPosted,
	}))

	category := "groceries"
	require.NoError(t, store.AppendAnnotationPatch(ctx, AnnotationPatch{
		TransactionID: "tx-late", Timestamp: late,
		CategoryTouched: true, Category: &category,
	}))
	tags := []string{"recurring"}
	require.NoError(t, store.AppendAnnotationPatch(ctx, AnnotationPatch{
		TransactionID: "tx-late", Timestamp: late.Add(time.Minute),
		TagsTouched: true, Tags: tags,
	}))

	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	transactions, err := store.Transactions(ctx, "acct-1", &start, nil)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	require.Equal(t, "tx-late", transactions[0].ID)
	require.NotNil(t, transactions[0].Annotation)
	require.Equal(t, &category, transactions[0].Annotation.Category)
	require.Equal(t, tags, transactions[0].Annotation.Tags)
}

func TestAnnotationPatchExplicitClearOverridesEarlierSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertConnection(ctx, domain.Connection{ID: "conn-1", Name: "Bank", Synchronizer: "manual"}))
	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1", CreatedAt: time.Now()}))

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordTransaction(ctx, "acct-1", domain.Transaction{
		ID: "tx-1", Timestamp: ts, Amount: decimal.RequireFromString("-5"),
		Asset: asset.Currency("USD"), Status: domain.StatusPosted,
	}))

	note := "lunch"
	require.NoError(t, store.AppendAnnotationPatch(ctx, AnnotationPatch{
		TransactionID: "tx-1", Timestamp: ts, NoteTouched: true, Note: &note,
	}))
	require.NoError(t, store.AppendAnnotationPatch(ctx, AnnotationPatch{
		TransactionID: "tx-1", Timestamp: ts.Add(time.Hour), NoteTouched: true, Note: nil,
	}))

	transactions, err := store.Transactions(ctx, "acct-1", nil, nil)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	require.NotNil(t, transactions[0].Annotation)
	require.Nil(t, transactions[0].Annotation.Note)
}
