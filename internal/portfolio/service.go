package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/changepoint"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/marketdata"
	"github.com/aristath/keepbook/internal/money"
)

// Service computes valued PortfolioSnapshots and, by replaying change
// points over the cache, portfolio history. It never mutates state: all
// writes to the market-data store happen through the routers that fed
// Service's *marketdata.Service.
type Service struct {
	accounts domain.AccountProvider
	market   *marketdata.Service
	clock    domain.Clock
	log      zerolog.Logger
}

// New returns a Service backed by accounts and market, defaulting to a
// system clock.
func New(accounts domain.AccountProvider, market *marketdata.Service, log zerolog.Logger) *Service {
	return &Service{accounts: accounts, market: market, clock: domain.SystemClock{}, log: log}
}

// WithClock overrides the clock used to decide whether a valuation date
// is "today" (live quote path) or historical (close-price path).
func (s *Service) WithClock(clock domain.Clock) *Service {
	s.clock = clock
	return s
}

type calculationContext struct {
	accountMap        map[string]domain.Account
	connectionMap     map[string]domain.Connection
	filteredSnapshots []accountSnapshot
	zeroAccounts      []string
}

type accountSnapshot struct {
	accountID string
	snapshot  domain.BalanceSnapshot
}

type assetAggregate struct {
	totalAmount       decimal.Decimal
	latestBalanceDate time.Time
	holdings          []assetHolding
}

type assetHolding struct {
	accountID string
	amount    decimal.Decimal
	timestamp time.Time
}

// Calculate computes the Snapshot for query, using live routers on a
// cache miss.
func (s *Service) Calculate(ctx context.Context, query Query) (*Snapshot, error) {
	return s.calculate(ctx, query, false)
}

// calculateOffline computes the Snapshot for query using only
// store-only accessors: a cache miss yields a missing valuation rather
// than invoking a router. Used by History so replaying the past never
// makes a network call.
func (s *Service) calculateOffline(ctx context.Context, query Query) (*Snapshot, error) {
	return s.calculate(ctx, query, true)
}

func (s *Service) calculate(ctx context.Context, query Query, offline bool) (*Snapshot, error) {
	calcCtx, err := s.loadContext(ctx, query.AsOfDate)
	if err != nil {
		return nil, err
	}

	byAsset := aggregateByAsset(calcCtx.filteredSnapshots)

	valuations, err := s.fetchValuations(ctx, byAsset, query.Currency, query.AsOfDate, offline)
	if err != nil {
		return nil, err
	}

	assetSummaries, totalValue, err := buildAssetSummaries(byAsset, valuations, calcCtx.accountMap, query.IncludeDetail, query.CurrencyDecimals)
	if err != nil {
		return nil, err
	}

	accountSummaries, err := buildAccountSummaries(calcCtx.filteredSnapshots, calcCtx.zeroAccounts, valuations, calcCtx.accountMap, calcCtx.connectionMap, query.CurrencyDecimals)
	if err != nil {
		return nil, err
	}

	sort.Slice(accountSummaries, func(i, j int) bool { return accountSummaries[i].AccountName < accountSummaries[j].AccountName })
	sort.Slice(assetSummaries, func(i, j int) bool {
		return asset.IDFrom(assetSummaries[i].Asset) < asset.IDFrom(assetSummaries[j].Asset)
	})

	snapshot := &Snapshot{
		AsOfDate:   query.AsOfDate,
		Currency:   query.Currency,
		TotalValue: money.FormatBaseCurrencyValue(totalValue, query.CurrencyDecimals),
	}
	switch query.Grouping {
	case GroupingAsset:
		snapshot.ByAsset = assetSummaries
	case GroupingAccount:
		snapshot.ByAccount = accountSummaries
	default:
		snapshot.ByAsset = assetSummaries
		snapshot.ByAccount = accountSummaries
	}
	return snapshot, nil
}

// loadContext lists accounts/connections and picks, per account, the
// latest balance snapshot at or before asOfDate's end-of-day, applying
// the account's backfill policy when none exists.
func (s *Service) loadContext(ctx context.Context, asOfDate time.Time) (*calculationContext, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	connections, err := s.accounts.ListConnections(ctx)
	if err != nil {
		return nil, err
	}

	accountMap := make(map[string]domain.Account, len(accounts))
	for _, a := range accounts {
		accountMap[a.ID] = a
	}
	connectionMap := make(map[string]domain.Connection, len(connections))
	for _, c := range connections {
		connectionMap[c.ID] = c
	}

	endOfDay := time.Date(asOfDate.Year(), asOfDate.Month(), asOfDate.Day(), 23, 59, 59, 0, asOfDate.Location())

	var filtered []accountSnapshot
	var zeroAccounts []string

	for _, account := range accounts {
		snapshots, err := s.accounts.BalanceSnapshots(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		if len(snapshots) == 0 {
			if account.BalanceBackfill == domain.BackfillZero {
				zeroAccounts = append(zeroAccounts, account.ID)
			}
			continue
		}

		if latest, ok := latestAtOrBefore(snapshots, endOfDay); ok {
			filtered = append(filtered, accountSnapshot{accountID: account.ID, snapshot: latest})
			continue
		}

		switch account.BalanceBackfill {
		case domain.BackfillCarryEarliest:
			if earliest, ok := earliestSnapshot(snapshots); ok {
				filtered = append(filtered, accountSnapshot{accountID: account.ID, snapshot: earliest})
			}
		case domain.BackfillZero:
			zeroAccounts = append(zeroAccounts, account.ID)
		}
	}

	return &calculationContext{
		accountMap:        accountMap,
		connectionMap:     connectionMap,
		filteredSnapshots: filtered,
		zeroAccounts:      zeroAccounts,
	}, nil
}

func latestAtOrBefore(snapshots []domain.BalanceSnapshot, cutoff time.Time) (domain.BalanceSnapshot, bool) {
	var best domain.BalanceSnapshot
	found := false
	for _, snap := range snapshots {
		if snap.Timestamp.After(cutoff) {
			continue
		}
		if !found || snap.Timestamp.After(best.Timestamp) {
			best = snap
			found = true
		}
	}
	return best, found
}

func earliestSnapshot(snapshots []domain.BalanceSnapshot) (domain.BalanceSnapshot, bool) {
	if len(snapshots) == 0 {
		return domain.BalanceSnapshot{}, false
	}
	best := snapshots[0]
	for _, snap := range snapshots[1:] {
		if snap.Timestamp.Before(best.Timestamp) {
			best = snap
		}
	}
	return best, true
}

// aggregateByAsset walks every (account, snapshot, balance) and sums
// totals per normalized asset, tracking the latest contributing balance
// date and per-account holding detail.
func aggregateByAsset(snapshots []accountSnapshot) map[asset.Asset]*assetAggregate {
	byAsset := make(map[asset.Asset]*assetAggregate)

	for _, entry := range snapshots {
		balanceDate := entry.snapshot.Timestamp
		for _, balance := range entry.snapshot.Balances {
			key := balance.Asset.Normalized()
			agg, ok := byAsset[key]
			if !ok {
				agg = &assetAggregate{totalAmount: money.Zero, latestBalanceDate: balanceDate}
				byAsset[key] = agg
			}
			agg.totalAmount = agg.totalAmount.Add(balance.Amount)
			if balanceDate.After(agg.latestBalanceDate) {
				agg.latestBalanceDate = balanceDate
			}
			agg.holdings = append(agg.holdings, assetHolding{
				accountID: entry.accountID,
				amount:    balance.Amount,
				timestamp: entry.snapshot.Timestamp,
			})
		}
	}
	return byAsset
}

// fetchValuations values every unique asset once, caching the result so
// an asset held by many accounts triggers one price/FX lookup.
func (s *Service) fetchValuations(ctx context.Context, byAsset map[asset.Asset]*assetAggregate, targetCurrency string, asOfDate time.Time, offline bool) (map[asset.Asset]valuation, error) {
	cache := make(map[asset.Asset]valuation, len(byAsset))
	for a := range byAsset {
		v, err := s.valueAsset(ctx, a, targetCurrency, asOfDate, offline)
		if err != nil {
			return nil, err
		}
		cache[a] = v
	}
	return cache, nil
}

// valueAsset computes the unit price of a in targetCurrency as of
// asOfDate. Missing price/FX data is not an error: it yields a
// valuation with value=nil, retaining whatever observational fields
// were found for audit. When offline is set, only the market-data
// store is consulted; a cache miss never invokes a router.
func (s *Service) valueAsset(ctx context.Context, a asset.Asset, targetCurrency string, asOfDate time.Time, offline bool) (valuation, error) {
	switch a.Kind {
	case asset.KindCurrency:
		if a.ISOCode == targetCurrency {
			one := money.One
			return valuation{value: &one}, nil
		}
		rate, err := s.fxClose(ctx, a.ISOCode, targetCurrency, asOfDate, offline)
		if err != nil || rate == nil {
			return valuation{}, nil
		}
		value := rate.Rate
		return valuation{value: &value, fxRate: &rate.Rate, fxDate: &rate.AsOfDate}, nil

	default: // KindEquity, KindCrypto
		var pricePoint *domain.PricePoint
		var err error
		switch {
		case offline:
			pricePoint, err = s.market.PriceFromStore(ctx, asset.IDFrom(a), asOfDate)
		case sameDate(asOfDate, s.clock.Now()):
			pricePoint, err = s.market.PriceLatest(ctx, a, asOfDate)
		default:
			pricePoint, err = s.market.PriceClose(ctx, a, asOfDate)
		}
		if err != nil || pricePoint == nil {
			return valuation{}, nil
		}

		price := pricePoint.Price
		if pricePoint.QuoteCurrency == targetCurrency {
			return valuation{price: &price, priceDate: &pricePoint.AsOfDate, priceTS: &pricePoint.Timestamp, value: &price}, nil
		}

		rate, err := s.fxClose(ctx, pricePoint.QuoteCurrency, targetCurrency, asOfDate, offline)
		if err != nil || rate == nil {
			return valuation{price: &price, priceDate: &pricePoint.AsOfDate, priceTS: &pricePoint.Timestamp}, nil
		}
		value := price.Mul(rate.Rate)
		return valuation{
			price: &price, priceDate: &pricePoint.AsOfDate, priceTS: &pricePoint.Timestamp,
			value: &value, fxRate: &rate.Rate, fxDate: &rate.AsOfDate,
		}, nil
	}
}

func (s *Service) fxClose(ctx context.Context, base, quote string, asOfDate time.Time, offline bool) (*domain.FxRatePoint, error) {
	if offline {
		return s.market.FxFromStore(ctx, base, quote, asOfDate)
	}
	return s.market.FxClose(ctx, base, quote, asOfDate)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func buildAssetSummaries(byAsset map[asset.Asset]*assetAggregate, valuations map[asset.Asset]valuation, accountMap map[string]domain.Account, includeDetail bool, decimals *int32) ([]AssetSummary, decimal.Decimal, error) {
	summaries := make([]AssetSummary, 0, len(byAsset))
	total := money.Zero

	for a, agg := range byAsset {
		v, ok := valuations[a]
		if !ok {
			return nil, decimal.Decimal{}, fmt.Errorf("missing valuation for asset %s", asset.IDFrom(a))
		}

		var assetValue *decimal.Decimal
		if v.value != nil {
			val := v.value.Mul(agg.totalAmount)
			assetValue = &val
			total = total.Add(val)
		}

		summary := AssetSummary{
			Asset:       a,
			TotalAmount: money.Format(agg.totalAmount),
			AmountDate:  agg.latestBalanceDate,
			PriceDate:   v.priceDate,
			PriceTS:     v.priceTS,
			FxDate:      v.fxDate,
		}
		if v.price != nil {
			s := money.Format(*v.price)
			summary.Price = &s
		}
		if v.fxRate != nil {
			s := money.Format(*v.fxRate)
			summary.FxRate = &s
		}
		if assetValue != nil {
			s := money.FormatBaseCurrencyValue(*assetValue, decimals)
			summary.ValueInBase = &s
		}
		if includeDetail {
			summary.Holdings = buildHoldingsDetail(agg.holdings, accountMap)
		}

		summaries = append(summaries, summary)
	}

	return summaries, total, nil
}

func buildHoldingsDetail(holdings []assetHolding, accountMap map[string]domain.Account) []AccountHolding {
	detail := make([]AccountHolding, 0, len(holdings))
	for _, h := range holdings {
		name := ""
		if account, ok := accountMap[h.accountID]; ok {
			name = account.Name
		}
		detail = append(detail, AccountHolding{
			AccountID:   h.accountID,
			AccountName: name,
			Amount:      money.Format(h.amount),
			BalanceDate: h.timestamp,
		})
	}
	return detail
}

func buildAccountSummaries(snapshots []accountSnapshot, zeroAccounts []string, valuations map[asset.Asset]valuation, accountMap map[string]domain.Account, connectionMap map[string]domain.Connection, decimals *int32) ([]AccountSummary, error) {
	type accountTotal struct {
		value      decimal.Decimal
		hasMissing bool
	}
	byAccount := make(map[string]*accountTotal)

	for _, entry := range snapshots {
		for _, balance := range entry.snapshot.Balances {
			key := balance.Asset.Normalized()
			v, ok := valuations[key]
			if !ok {
				return nil, fmt.Errorf("missing valuation for asset %s", asset.IDFrom(key))
			}

			acc, ok := byAccount[entry.accountID]
			if !ok {
				acc = &accountTotal{value: money.Zero}
				byAccount[entry.accountID] = acc
			}
			if v.value != nil {
				acc.value = acc.value.Add(v.value.Mul(balance.Amount))
			} else {
				acc.hasMissing = true
			}
		}
	}

	summaries := make([]AccountSummary, 0, len(byAccount)+len(zeroAccounts))
	seen := make(map[string]struct{}, len(byAccount))
	for accountID, total := range byAccount {
		account, ok := accountMap[accountID]
		if !ok {
			continue
		}
		connection, ok := connectionMap[account.ConnectionID]
		if !ok {
			continue
		}
		seen[accountID] = struct{}{}
		summary := AccountSummary{
			AccountID:      accountID,
			AccountName:    account.Name,
			ConnectionName: connection.Name,
		}
		if !total.hasMissing {
			s := money.FormatBaseCurrencyValue(total.value, decimals)
			summary.ValueInBase = &s
		}
		summaries = append(summaries, summary)
	}

	for _, accountID := range zeroAccounts {
		if _, ok := seen[accountID]; ok {
			continue
		}
		account, ok := accountMap[accountID]
		if !ok {
			continue
		}
		connection, ok := connectionMap[account.ConnectionID]
		if !ok {
			continue
		}
		s := money.FormatBaseCurrencyValue(money.Zero, decimals)
		summaries = append(summaries, AccountSummary{
			AccountID:      accountID,
			AccountName:    account.Name,
			ConnectionName: connection.Name,
			ValueInBase:    &s,
		})
	}

	return summaries, nil
}

// History parameters for a historical replay over the local cache.
type HistoryOptions struct {
	Start            time.Time
	End              time.Time
	IncludePrices    bool
	Granularity      changepoint.Granularity
	Strategy         changepoint.Strategy
	CustomBucket     time.Duration
	Currency         string
	CurrencyDecimals *int32
}

// History replays the snapshot algorithm at every surviving change
// point between opts.Start and opts.End, entirely from the local cache
// (no router is ever invoked): see marketdata.Service's store-only
// accessors.
func (s *Service) History(ctx context.Context, opts HistoryOptions) (*History, error) {
	points, err := changepoint.Collect(ctx, s.accounts, s.market.Store(), changepoint.CollectOptions{IncludePrices: opts.IncludePrices}, s.log)
	if err != nil {
		return nil, err
	}
	points = changepoint.FilterByDateRange(points, opts.Start, opts.End)
	points = changepoint.FilterByGranularity(points, opts.Granularity, opts.Strategy, opts.CustomBucket)

	out := make([]HistoryPoint, 0, len(points))
	for _, cp := range points {
		snapshot, err := s.calculateOffline(ctx, Query{
			AsOfDate:         cp.Timestamp,
			Currency:         opts.Currency,
			CurrencyDecimals: opts.CurrencyDecimals,
			Grouping:         GroupingBoth,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, HistoryPoint{
			Timestamp:      cp.Timestamp,
			Date:           cp.Timestamp,
			TotalValue:     snapshot.TotalValue,
			ChangeTriggers: len(cp.Triggers),
		})
	}

	history := &History{Points: out}
	if len(out) >= 2 {
		history.Summary = summarize(out[0].TotalValue, out[len(out)-1].TotalValue)
	}
	return history, nil
}

func summarize(initial, final string) *HistorySummary {
	initialDec, errI := money.Parse(initial)
	finalDec, errF := money.Parse(final)
	summary := &HistorySummary{Initial: initial, Final: final}
	if errI != nil || errF != nil {
		summary.Absolute = "N/A"
		summary.Percentage = "N/A"
		return summary
	}
	absolute := finalDec.Sub(initialDec)
	summary.Absolute = money.Format(absolute)
	if initialDec.IsZero() {
		summary.Percentage = "N/A"
		return summary
	}
	pct := absolute.Div(initialDec).Mul(decimal.NewFromInt(100)).Round(2)
	summary.Percentage = pct.String()
	return summary
}
