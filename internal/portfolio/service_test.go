package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/changepoint"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/marketdata"
	"github.com/aristath/keepbook/internal/money"
	"github.com/aristath/keepbook/internal/store/memstore"
)

type fakeProvider struct {
	accounts    []domain.Account
	connections []domain.Connection
	snapshots   map[string][]domain.BalanceSnapshot
}

func (p *fakeProvider) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return p.accounts, nil
}
func (p *fakeProvider) ListConnections(ctx context.Context) ([]domain.Connection, error) {
	return p.connections, nil
}
func (p *fakeProvider) BalanceSnapshots(ctx context.Context, accountID string) ([]domain.BalanceSnapshot, error) {
	return p.snapshots[accountID], nil
}
func (p *fakeProvider) Transactions(ctx context.Context, accountID string, start, end *time.Time) ([]domain.Transaction, error) {
	return nil, nil
}

func ts(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func bal(a asset.Asset, amount string) domain.AssetBalance {
	return domain.AssetBalance{Asset: a, Amount: money.MustParse(amount)}
}

func TestCalculateSingleCurrencyHolding(t *testing.T) {
	provider := &fakeProvider{
		accounts:    []domain.Account{{ID: "acc1", Name: "Checking", ConnectionID: "conn1"}},
		connections: []domain.Connection{{ID: "conn1", Name: "Test Bank"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {{Timestamp: ts(2026, 2, 1, 12, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "1000.00")}}},
		},
	}
	market := marketdata.New(memstore.New(), zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())

	snapshot, err := svc.Calculate(context.Background(), Query{
		AsOfDate: ts(2026, 2, 2, 0, 0), Currency: "USD", Grouping: GroupingBoth,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", snapshot.TotalValue)
	assert.Equal(t, "USD", snapshot.Currency)
}

func TestCalculateWithEquityAndFx(t *testing.T) {
	provider := &fakeProvider{
		accounts:    []domain.Account{{ID: "acc1", Name: "Brokerage", ConnectionID: "conn1"}},
		connections: []domain.Connection{{ID: "conn1", Name: "Broker"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {{Timestamp: ts(2026, 2, 1, 12, 0), Balances: []domain.AssetBalance{bal(asset.Equity("AAPL", ""), "10")}}},
		},
	}
	store := memstore.New()
	asOfDate := ts(2026, 2, 1, 0, 0)
	require.NoError(t, store.PutPrices(context.Background(), []domain.PricePoint{{
		AssetID: asset.IDFrom(asset.Equity("AAPL", "")), AsOfDate: asOfDate, Timestamp: time.Now(),
		Price: money.MustParse("200"), QuoteCurrency: "USD", Kind: domain.PriceClose, Source: "test",
	}}))
	require.NoError(t, store.PutFxRates(context.Background(), []domain.FxRatePoint{{
		Base: "USD", Quote: "EUR", AsOfDate: asOfDate, Timestamp: time.Now(),
		Rate: money.MustParse("0.91"), Kind: domain.FxClose, Source: "test",
	}}))

	market := marketdata.New(store, zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())

	snapshot, err := svc.Calculate(context.Background(), Query{
		AsOfDate: ts(2026, 2, 2, 0, 0), Currency: "EUR", Grouping: GroupingAsset,
	})
	require.NoError(t, err)
	assert.Equal(t, "1820", snapshot.TotalValue)
	require.Len(t, snapshot.ByAsset, 1)
	assert.Equal(t, "10", snapshot.ByAsset[0].TotalAmount)
	require.NotNil(t, snapshot.ByAsset[0].Price)
	assert.Equal(t, "200", *snapshot.ByAsset[0].Price)
	require.NotNil(t, snapshot.ByAsset[0].FxRate)
	assert.Equal(t, "0.91", *snapshot.ByAsset[0].FxRate)
	require.NotNil(t, snapshot.ByAsset[0].ValueInBase)
	assert.Equal(t, "1820", *snapshot.ByAsset[0].ValueInBase)
}

func TestCalculateWithDetail(t *testing.T) {
	provider := &fakeProvider{
		accounts: []domain.Account{
			{ID: "acc1", Name: "Checking", ConnectionID: "conn1"},
			{ID: "acc2", Name: "Savings", ConnectionID: "conn1"},
		},
		connections: []domain.Connection{{ID: "conn1", Name: "Bank"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {{Timestamp: ts(2026, 2, 1, 12, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "1000")}}},
			"acc2": {{Timestamp: ts(2026, 2, 1, 14, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "2000")}}},
		},
	}
	market := marketdata.New(memstore.New(), zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())

	snapshot, err := svc.Calculate(context.Background(), Query{
		AsOfDate: ts(2026, 2, 2, 0, 0), Currency: "USD", Grouping: GroupingAsset, IncludeDetail: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "3000", snapshot.TotalValue)

	require.Len(t, snapshot.ByAsset, 1)
	assert.Equal(t, "3000", snapshot.ByAsset[0].TotalAmount)
	require.Len(t, snapshot.ByAsset[0].Holdings, 2)

	var checking, savings *AccountHolding
	for i := range snapshot.ByAsset[0].Holdings {
		h := &snapshot.ByAsset[0].Holdings[i]
		switch h.AccountName {
		case "Checking":
			checking = h
		case "Savings":
			savings = h
		}
	}
	require.NotNil(t, checking)
	require.NotNil(t, savings)
	assert.Equal(t, "1000", checking.Amount)
	assert.Equal(t, "2000", savings.Amount)
}

func TestCalculateMergesCaseInsensitiveAssets(t *testing.T) {
	provider := &fakeProvider{
		accounts: []domain.Account{
			{ID: "acc1", Name: "Checking", ConnectionID: "conn1"},
			{ID: "acc2", Name: "Savings", ConnectionID: "conn1"},
		},
		connections: []domain.Connection{{ID: "conn1", Name: "Bank"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {{Timestamp: ts(2026, 2, 1, 12, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "1000")}}},
			"acc2": {{Timestamp: ts(2026, 2, 1, 14, 0), Balances: []domain.AssetBalance{bal(asset.Currency(" usd "), "2000")}}},
		},
	}
	market := marketdata.New(memstore.New(), zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())

	snapshot, err := svc.Calculate(context.Background(), Query{
		AsOfDate: ts(2026, 2, 2, 0, 0), Currency: "USD", Grouping: GroupingAsset,
	})
	require.NoError(t, err)
	require.Len(t, snapshot.ByAsset, 1)
	assert.Equal(t, "3000", snapshot.ByAsset[0].TotalAmount)
	assert.Equal(t, "USD", snapshot.ByAsset[0].Asset.ISOCode)
}

func TestCalculateUsesLatestSnapshotBeforeDate(t *testing.T) {
	provider := &fakeProvider{
		accounts:    []domain.Account{{ID: "acc1", Name: "Checking", ConnectionID: "conn1"}},
		connections: []domain.Connection{{ID: "conn1", Name: "Test Bank"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {
				{Timestamp: ts(2026, 2, 1, 12, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "1000")}},
				{Timestamp: ts(2026, 2, 3, 12, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "2000")}},
			},
		},
	}
	market := marketdata.New(memstore.New(), zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())

	snapshot, err := svc.Calculate(context.Background(), Query{
		AsOfDate: ts(2026, 2, 2, 0, 0), Currency: "USD", Grouping: GroupingBoth,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", snapshot.TotalValue)
}

func TestCalculateZeroBackfill(t *testing.T) {
	provider := &fakeProvider{
		accounts:    []domain.Account{{ID: "acc1", Name: "Checking", ConnectionID: "conn1", BalanceBackfill: domain.BackfillZero}},
		connections: []domain.Connection{{ID: "conn1", Name: "Test Bank"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {{Timestamp: ts(2026, 2, 3, 12, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "1000")}}},
		},
	}
	market := marketdata.New(memstore.New(), zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())

	snapshot, err := svc.Calculate(context.Background(), Query{
		AsOfDate: ts(2026, 2, 1, 0, 0), Currency: "USD", Grouping: GroupingAccount,
	})
	require.NoError(t, err)
	assert.Equal(t, "0", snapshot.TotalValue)
	require.Len(t, snapshot.ByAccount, 1)
	require.NotNil(t, snapshot.ByAccount[0].ValueInBase)
	assert.Equal(t, "0", *snapshot.ByAccount[0].ValueInBase)
}

func TestCalculateCarryBackEarliestBalance(t *testing.T) {
	provider := &fakeProvider{
		accounts:    []domain.Account{{ID: "acc1", Name: "Checking", ConnectionID: "conn1", BalanceBackfill: domain.BackfillCarryEarliest}},
		connections: []domain.Connection{{ID: "conn1", Name: "Test Bank"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {{Timestamp: ts(2026, 2, 3, 12, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "1000")}}},
		},
	}
	market := marketdata.New(memstore.New(), zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())

	snapshot, err := svc.Calculate(context.Background(), Query{
		AsOfDate: ts(2026, 2, 1, 0, 0), Currency: "USD", Grouping: GroupingBoth,
	})
	require.NoError(t, err)
	assert.Equal(t, "1000", snapshot.TotalValue)
}

func TestHistoricalSnapshotUsesCloseNotLiveQuote(t *testing.T) {
	a := asset.Equity("AAPL", "")
	id := asset.IDFrom(a)
	asOfDate := ts(2024, 1, 2, 0, 0)

	store := memstore.New()
	require.NoError(t, store.PutPrices(context.Background(), []domain.PricePoint{{
		AssetID: id, AsOfDate: asOfDate, Timestamp: time.Now(),
		Price: money.MustParse("100"), QuoteCurrency: "USD", Kind: domain.PriceClose, Source: "close",
	}}))

	quoteSource := &quoteOnlySource{quote: &domain.PricePoint{
		AssetID: id, AsOfDate: time.Now(), Timestamp: time.Now(),
		Price: money.MustParse("200"), QuoteCurrency: "USD", Kind: domain.PriceQuote, Source: "quote",
	}}
	market := marketdata.New(store, zerolog.Nop()).
		WithEquityRouter(marketdata.NewEquityPriceRouter([]domain.EquityPriceSource{quoteSource}, zerolog.Nop()))

	provider := &fakeProvider{}
	svc := New(provider, market, zerolog.Nop())

	v, err := svc.valueAsset(context.Background(), a, "USD", asOfDate, false)
	require.NoError(t, err)
	require.NotNil(t, v.price)
	assert.Equal(t, "100", money.Format(*v.price))
	require.NotNil(t, v.priceDate)
	assert.True(t, sameDate(*v.priceDate, asOfDate))
}

type quoteOnlySource struct {
	quote *domain.PricePoint
}

func (s *quoteOnlySource) Name() string { return "quote-only" }
func (s *quoteOnlySource) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	return nil, nil
}
func (s *quoteOnlySource) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	return s.quote, true, nil
}

func TestHistoryCoalescesToDailyGranularityAndSummarizes(t *testing.T) {
	provider := &fakeProvider{
		accounts:    []domain.Account{{ID: "acc1", Name: "Checking", ConnectionID: "conn1"}},
		connections: []domain.Connection{{ID: "conn1", Name: "Test Bank"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {
				{Timestamp: ts(2026, 1, 15, 10, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "1000")}},
				{Timestamp: ts(2026, 1, 15, 18, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "1500")}},
				{Timestamp: ts(2026, 1, 16, 9, 0), Balances: []domain.AssetBalance{bal(asset.Currency("USD"), "2000")}},
			},
		},
	}
	market := marketdata.New(memstore.New(), zerolog.Nop())
	svc := New(provider, market, zerolog.Nop())

	history, err := svc.History(context.Background(), HistoryOptions{
		Start:       ts(2026, 1, 1, 0, 0),
		End:         ts(2026, 1, 31, 0, 0),
		Granularity: changepoint.Daily,
		Strategy:    changepoint.Last,
		Currency:    "USD",
	})
	require.NoError(t, err)
	require.Len(t, history.Points, 2)
	assert.Equal(t, "1500", history.Points[0].TotalValue)
	assert.Equal(t, "2000", history.Points[1].TotalValue)

	require.NotNil(t, history.Summary)
	assert.Equal(t, "1500", history.Summary.Initial)
	assert.Equal(t, "2000", history.Summary.Final)
	assert.Equal(t, "500", history.Summary.Absolute)
	assert.Equal(t, "33.33", history.Summary.Percentage)
}

func TestHistoryNeverInvokesRouterEvenOnCacheMiss(t *testing.T) {
	a := asset.Equity("AAPL", "")
	provider := &fakeProvider{
		accounts:    []domain.Account{{ID: "acc1", Name: "Brokerage", ConnectionID: "conn1"}},
		connections: []domain.Connection{{ID: "conn1", Name: "Broker"}},
		snapshots: map[string][]domain.BalanceSnapshot{
			"acc1": {{Timestamp: ts(2026, 1, 15, 10, 0), Balances: []domain.AssetBalance{bal(a, "10")}}},
		},
	}
	source := &stubNeverCalledSource{}
	market := marketdata.New(memstore.New(), zerolog.Nop()).
		WithEquityRouter(marketdata.NewEquityPriceRouter([]domain.EquityPriceSource{source}, zerolog.Nop()))
	svc := New(provider, market, zerolog.Nop())

	history, err := svc.History(context.Background(), HistoryOptions{
		Start:       ts(2026, 1, 1, 0, 0),
		End:         ts(2026, 1, 31, 0, 0),
		Granularity: changepoint.Full,
		Currency:    "USD",
	})
	require.NoError(t, err)
	require.Len(t, history.Points, 1)
	assert.Equal(t, 0, source.calls)
}

type stubNeverCalledSource struct{ calls int }

func (s *stubNeverCalledSource) Name() string { return "never-called" }
func (s *stubNeverCalledSource) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	s.calls++
	return nil, nil
}
func (s *stubNeverCalledSource) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	s.calls++
	return nil, false, nil
}

func TestCalculateErrorsOnMissingValuationCacheEntry(t *testing.T) {
	agg := map[asset.Asset]*assetAggregate{
		asset.Equity("AAPL", ""): {totalAmount: money.MustParse("1"), latestBalanceDate: ts(2026, 2, 1, 0, 0)},
	}
	_, _, err := buildAssetSummaries(agg, map[asset.Asset]valuation{}, map[string]domain.Account{}, false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing valuation")
}
