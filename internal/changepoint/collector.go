// Package changepoint identifies every timestamp at which a portfolio's
// value could have changed: a balance snapshot, a price observation
// for an asset that was actually held, or an FX rate update. The
// collector coalesces triggers that land on the same timestamp, then
// callers can thin the result down to a calendar granularity before
// feeding it to the portfolio valuation walk.
package changepoint

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
)

// Collector accumulates change points keyed by timestamp, merging
// triggers that share an instant, and tracks which assets were seen so
// callers know which price histories are worth loading.
type Collector struct {
	points     map[time.Time][]domain.ChangeTrigger
	heldAssets map[asset.ID]struct{}
}

// New returns an empty Collector.
func New() *Collector {
	return &Collector{
		points:     make(map[time.Time][]domain.ChangeTrigger),
		heldAssets: make(map[asset.ID]struct{}),
	}
}

// AddBalanceChange records that accountID's holding of a changed at
// timestamp. Also marks a as held so price changes for it matter.
func (c *Collector) AddBalanceChange(timestamp time.Time, accountID string, a asset.Asset) {
	c.heldAssets[asset.IDFrom(a)] = struct{}{}
	c.points[timestamp] = append(c.points[timestamp], domain.ChangeTrigger{
		Kind:      domain.TriggerBalance,
		AccountID: accountID,
		Asset:     a,
	})
}

// AddPriceChange records that id's price changed at timestamp.
func (c *Collector) AddPriceChange(timestamp time.Time, id asset.ID) {
	c.points[timestamp] = append(c.points[timestamp], domain.ChangeTrigger{
		Kind:         domain.TriggerPrice,
		PriceAssetID: id,
	})
}

// AddFxChange records that the base/quote FX rate changed at timestamp.
func (c *Collector) AddFxChange(timestamp time.Time, base, quote string) {
	c.points[timestamp] = append(c.points[timestamp], domain.ChangeTrigger{
		Kind:    domain.TriggerFxRate,
		FxBase:  base,
		FxQuote: quote,
	})
}

// HeldAssets returns the set of assets seen via AddBalanceChange so far.
func (c *Collector) HeldAssets() map[asset.ID]struct{} {
	return c.heldAssets
}

// Len reports the number of distinct timestamps collected.
func (c *Collector) Len() int { return len(c.points) }

// IsEmpty reports whether no change points were collected.
func (c *Collector) IsEmpty() bool { return len(c.points) == 0 }

// ChangePoints consumes the collector and returns its change points
// sorted ascending by timestamp.
func (c *Collector) ChangePoints() []domain.ChangePoint {
	out := make([]domain.ChangePoint, 0, len(c.points))
	for ts, triggers := range c.points {
		out = append(out, domain.ChangePoint{Timestamp: ts, Triggers: triggers})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Granularity is the calendar bucket used to thin a dense change-point
// series down before it's walked for valuation.
type Granularity int

const (
	// Full keeps every change point (no filtering).
	Full Granularity = iota
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
	// Custom buckets by an arbitrary duration; set CustomBucket on the
	// filter call when using it.
	Custom
)

// Strategy picks which point survives within a bucket.
type Strategy int

const (
	// Last keeps the latest point in each bucket.
	Last Strategy = iota
	// First keeps the earliest point in each bucket.
	First
)

type bucketKey struct {
	duration int64 // timestamp / bucket seconds, used by Hourly/Daily/Weekly/Custom
	year     int
	month    int
	useMonth bool
	useYear  bool
}

// FilterByGranularity thins points down to at most one change point per
// calendar bucket of the given granularity, keeping the point selected
// by strategy within each bucket. Points is assumed already sorted
// ascending by timestamp (ChangePoints returns it that way); the result
// preserves that order. customBucket is only consulted when granularity
// is Custom.
func FilterByGranularity(points []domain.ChangePoint, granularity Granularity, strategy Strategy, customBucket time.Duration) []domain.ChangePoint {
	if len(points) == 0 || granularity == Full {
		return points
	}

	order := make([]bucketKey, 0, len(points))
	buckets := make(map[bucketKey][]domain.ChangePoint)
	for _, p := range points {
		key := bucketKeyFor(p.Timestamp, granularity, customBucket)
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], p)
	}

	out := make([]domain.ChangePoint, 0, len(order))
	for _, key := range order {
		bucket := buckets[key]
		switch strategy {
		case First:
			out = append(out, bucket[0])
		default:
			out = append(out, bucket[len(bucket)-1])
		}
	}
	return out
}

func bucketKeyFor(ts time.Time, granularity Granularity, customBucket time.Duration) bucketKey {
	switch granularity {
	case Hourly:
		return bucketKey{duration: ts.Unix() / 3600}
	case Daily:
		return bucketKey{duration: ts.Unix() / 86400}
	case Weekly:
		return bucketKey{duration: ts.Unix() / (86400 * 7)}
	case Monthly:
		return bucketKey{year: ts.Year(), month: int(ts.Month()), useMonth: true}
	case Yearly:
		return bucketKey{year: ts.Year(), useYear: true}
	case Custom:
		seconds := int64(customBucket.Seconds())
		if seconds <= 0 {
			seconds = 1
		}
		return bucketKey{duration: ts.Unix() / seconds}
	default:
		return bucketKey{duration: ts.Unix()}
	}
}

// FilterByDateRange keeps only the points whose calendar date falls
// within [start, end], either bound optional (a zero time.Time means
// unbounded on that side).
func FilterByDateRange(points []domain.ChangePoint, start, end time.Time) []domain.ChangePoint {
	dateOf := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	out := make([]domain.ChangePoint, 0, len(points))
	for _, p := range points {
		date := dateOf(p.Timestamp)
		if !start.IsZero() && date.Before(dateOf(start)) {
			continue
		}
		if !end.IsZero() && date.After(dateOf(end)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// CollectOptions scopes a Collect call.
type CollectOptions struct {
	// AccountIDs restricts collection to these accounts. Empty means
	// all accounts.
	AccountIDs []string
	// IncludePrices adds a price change point for every observation of
	// every asset actually held by the selected accounts.
	IncludePrices bool
}

// Collect gathers balance change points from provider (optionally
// scoped to opts.AccountIDs) and, when opts.IncludePrices is set, price
// change points for every asset held by those accounts, from store.
func Collect(ctx context.Context, provider domain.AccountProvider, store domain.MarketDataStore, opts CollectOptions, log zerolog.Logger) ([]domain.ChangePoint, error) {
	collector := New()

	accountIDs, err := resolveAccountIDs(ctx, provider, opts.AccountIDs)
	if err != nil {
		return nil, err
	}

	for _, accountID := range accountIDs {
		snapshots, err := provider.BalanceSnapshots(ctx, accountID)
		if err != nil {
			return nil, err
		}
		for _, snapshot := range snapshots {
			for _, balance := range snapshot.Balances {
				collector.AddBalanceChange(snapshot.Timestamp, accountID, balance.Asset)
			}
		}
	}

	if opts.IncludePrices {
		for id := range collector.HeldAssets() {
			prices, err := store.GetAllPrices(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, price := range prices {
				collector.AddPriceChange(price.Timestamp, id)
			}
		}
	}

	log.Debug().Int("change_points", collector.Len()).Int("accounts", len(accountIDs)).Msg("collected change points")
	return collector.ChangePoints(), nil
}

func resolveAccountIDs(ctx context.Context, provider domain.AccountProvider, requested []string) ([]string, error) {
	if len(requested) == 0 {
		accounts, err := provider.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(accounts))
		for _, a := range accounts {
			ids = append(ids, a.ID)
		}
		return ids, nil
	}
	return requested, nil
}
