package spending

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/marketdata"
	"github.com/aristath/keepbook/internal/store/memstore"
)

type fakeProvider struct {
	accounts     []domain.Account
	connections  []domain.Connection
	transactions map[string][]domain.Transaction
}

func (p *fakeProvider) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return p.accounts, nil
}

func (p *fakeProvider) ListConnections(ctx context.Context) ([]domain.Connection, error) {
	return p.connections, nil
}

func (p *fakeProvider) BalanceSnapshots(ctx context.Context, accountID string) ([]domain.BalanceSnapshot, error) {
	return nil, nil
}

func (p *fakeProvider) Transactions(ctx context.Context, accountID string, start, end *time.Time) ([]domain.Transaction, error) {
	return p.transactions[accountID], nil
}

func tx(id string, ts time.Time, amount string, a asset.Asset, description string) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Timestamp:   ts,
		Amount:      decimal.RequireFromString(amount),
		Asset:       a,
		Description: description,
		Status:      domain.StatusPosted,
	}
}

func newFixedClockService(provider domain.AccountProvider, store domain.MarketDataStore, now time.Time) *Service {
	market := marketdata.New(store, zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())
	return svc.WithClock(domain.FixedClock{At: now})
}

func TestSpendingReportBucketsByTimezoneDate(t *testing.T) {
	// 2026-02-01T02:30Z is 2026-01-31 in America/New_York (UTC-05 in winter).
	ts := time.Date(2026, 2, 1, 2, 30, 0, 0, time.UTC)
	provider := &fakeProvider{
		accounts: []domain.Account{{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1"}},
		transactions: map[string][]domain.Transaction{
			"acct-1": {tx("tx-1", ts, "-10", asset.Currency("USD"), "Test")},
		},
	}
	store := memstore.New()
	svc := newFixedClockService(provider, store, ts)

	report, err := svc.Run(context.Background(), Options{
		Currency:  "USD",
		Start:     "2026-01-30",
		End:       "2026-02-02",
		Period:    "daily",
		TZ:        "America/New_York",
		Account:   "acct-1",
		Status:    "posted",
		Direction: "outflow",
		GroupBy:   "none",
	})
	require.NoError(t, err)
	require.Len(t, report.Periods, 1)
	require.Equal(t, "2026-01-31", formatYMD(report.Periods[0].StartDate))
	require.Equal(t, "10", report.Periods[0].Total)
}

func TestSpendingReportConvertsFxAndPrices(t *testing.T) {
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		accounts: []domain.Account{{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1"}},
		transactions: map[string][]domain.Transaction{
			"acct-1": {
				tx("tx-eur", ts, "-10", asset.Currency("EUR"), "EUR debit"),
				tx("tx-eq", ts, "-2", asset.Equity("AAPL", ""), "Buy AAPL shares"),
			},
		},
	}
	store := memstore.New()
	// EURUSD close 1.2 on 2026-02-05 => -10 EUR -> -12 USD (outflow 12).
	require.NoError(t, store.PutFxRates(context.Background(), []domain.FxRatePoint{{
		Base: "EUR", Quote: "USD", AsOfDate: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
		Timestamp: ts, Rate: decimal.RequireFromString("1.2"), Kind: domain.FxClose, Source: "test",
	}}))
	// AAPL close 50 USD on 2026-02-05 => -2 shares -> -100 USD (outflow 100).
	require.NoError(t, store.PutPrices(context.Background(), []domain.PricePoint{{
		AssetID: asset.IDFrom(asset.Equity("AAPL", "")), AsOfDate: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
		Timestamp: ts, Price: decimal.RequireFromString("50"), QuoteCurrency: "USD", Kind: domain.PriceClose, Source: "test",
	}}))

	svc := newFixedClockService(provider, store, ts)
	report, err := svc.Run(context.Background(), Options{
		Currency:           "USD",
		Start:              "2026-02-01",
		End:                "2026-02-28",
		Period:             "monthly",
		TZ:                 "utc",
		Account:            "acct-1",
		Status:             "posted",
		Direction:          "outflow",
		GroupBy:            "none",
		IncludeNonCurrency: true,
	})
	require.NoError(t, err)
	require.Equal(t, "112", report.Total)
	require.Equal(t, 2, report.TransactionCount)
}

func TestSpendingReportIgnoresAccountsByConfiguredTags(t *testing.T) {
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		accounts: []domain.Account{
			{ID: "acct-card", Name: "Card", ConnectionID: "conn-1"},
			{ID: "acct-brokerage", Name: "Individual", ConnectionID: "conn-1", Tags: []string{"brokerage"}},
		},
		transactions: map[string][]domain.Transaction{
			"acct-card":      {tx("tx-card", ts, "-10", asset.Currency("USD"), "Card spend")},
			"acct-brokerage": {tx("tx-brokerage", ts, "-2000", asset.Currency("USD"), "Brokerage transfer")},
		},
	}
	store := memstore.New()
	svc := newFixedClockService(provider, store, ts)

	report, err := svc.Run(context.Background(), Options{
		Currency:  "USD",
		Start:     "2026-02-01",
		End:       "2026-02-28",
		Period:    "monthly",
		TZ:        "utc",
		Status:    "posted",
		Direction: "outflow",
		GroupBy:   "none",
		Ignore:    IgnoreRules{Tags: []string{"brokerage"}},
	})
	require.NoError(t, err)
	require.Equal(t, "10", report.Total)
	require.Equal(t, 1, report.TransactionCount)
}

func TestSpendingReportSkipsOnMissingPriceAndCountsIt(t *testing.T) {
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		accounts: []domain.Account{{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1"}},
		transactions: map[string][]domain.Transaction{
			"acct-1": {tx("tx-eq", ts, "-2", asset.Equity("AAPL", ""), "Buy AAPL shares")},
		},
	}
	store := memstore.New() // no price stored
	svc := newFixedClockService(provider, store, ts)

	report, err := svc.Run(context.Background(), Options{
		Currency:           "USD",
		Start:              "2026-02-01",
		End:                "2026-02-28",
		Period:             "monthly",
		TZ:                 "utc",
		Account:            "acct-1",
		Status:             "posted",
		Direction:          "outflow",
		GroupBy:            "none",
		IncludeNonCurrency: true,
	})
	require.NoError(t, err)
	require.Equal(t, "0", report.Total)
	require.Equal(t, 0, report.TransactionCount)
	require.Equal(t, 1, report.SkippedTransactionCount)
	require.Equal(t, 1, report.MissingPriceTransactionCount)
}

func TestSpendingReportGroupsByCategoryWithUncategorizedDefault(t *testing.T) {
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	category := "groceries"
	annotated := tx("tx-1", ts, "-10", asset.Currency("USD"), "Market")
	annotated.Annotation = &domain.Annotation{Category: &category}
	plain := tx("tx-2", ts, "-5", asset.Currency("USD"), "Misc")

	provider := &fakeProvider{
		accounts: []domain.Account{{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1"}},
		transactions: map[string][]domain.Transaction{
			"acct-1": {annotated, plain},
		},
	}
	store := memstore.New()
	svc := newFixedClockService(provider, store, ts)

	report, err := svc.Run(context.Background(), Options{
		Currency:  "USD",
		Start:     "2026-02-01",
		End:       "2026-02-28",
		Period:    "monthly",
		TZ:        "utc",
		Account:   "acct-1",
		Status:    "posted",
		Direction: "outflow",
		GroupBy:   "category",
	})
	require.NoError(t, err)
	require.Len(t, report.Periods, 1)
	breakdown := report.Periods[0].Breakdown
	require.Len(t, breakdown, 2)
	require.Equal(t, "groceries", breakdown[0].Key)
	require.Equal(t, "10", breakdown[0].Total)
	require.Equal(t, "uncategorized", breakdown[1].Key)
	require.Equal(t, "5", breakdown[1].Total)
}

func TestSpendingReportIncludeEmptyEnumeratesAllBuckets(t *testing.T) {
	ts := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		accounts: []domain.Account{{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1"}},
		transactions: map[string][]domain.Transaction{
			"acct-1": {tx("tx-1", ts, "-10", asset.Currency("USD"), "Test")},
		},
	}
	store := memstore.New()
	svc := newFixedClockService(provider, store, ts)

	report, err := svc.Run(context.Background(), Options{
		Currency:     "USD",
		Start:        "2026-01-01",
		End:          "2026-01-03",
		Period:       "daily",
		TZ:           "utc",
		Account:      "acct-1",
		Status:       "posted",
		Direction:    "outflow",
		GroupBy:      "none",
		IncludeEmpty: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Periods, 3)
	require.Equal(t, "0", report.Periods[0].Total)
}

func TestSpendingReportCustomBucketRequiresWholeDayMultiple(t *testing.T) {
	bucket := 90 * time.Minute
	provider := &fakeProvider{}
	store := memstore.New()
	svc := newFixedClockService(provider, store, time.Now())

	_, err := svc.Run(context.Background(), Options{
		Currency: "USD",
		Period:   "custom",
		Bucket:   &bucket,
	})
	require.Error(t, err)
}

func TestSpendingReportNeverInvokesMarketDataRouter(t *testing.T) {
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	provider := &fakeProvider{
		accounts: []domain.Account{{ID: "acct-1", Name: "Checking", ConnectionID: "conn-1"}},
		transactions: map[string][]domain.Transaction{
			"acct-1": {tx("tx-eq", ts, "-2", asset.Equity("AAPL", ""), "Buy AAPL shares")},
		},
	}
	store := memstore.New()
	market := marketdata.New(store, zerolog.Nop())
	// Deliberately no routers configured: WithEquityRouter/WithFxRouter
	// are never called, so the price can only come from the store, and
	// with nothing stored the transaction counts as a missing price.
	svc := New(provider, market, zerolog.Nop()).WithClock(domain.FixedClock{At: ts})

	report, err := svc.Run(context.Background(), Options{
		Currency:           "USD",
		Start:              "2026-02-01",
		End:                "2026-02-28",
		Period:             "monthly",
		TZ:                 "utc",
		Account:            "acct-1",
		Status:             "posted",
		Direction:          "outflow",
		GroupBy:            "none",
		IncludeNonCurrency: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.MissingPriceTransactionCount)
}
