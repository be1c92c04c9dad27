package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/asset"
)

// MarketDataStore is the persistent cache for observations and the
// asset registry. Implementations: an on-disk JSONL tree (the reference
// layout) and an in-memory store for tests. Non-existence is never an
// error: missing files/keys yield empty results.
type MarketDataStore interface {
	GetPrice(ctx context.Context, id asset.ID, date time.Time, kind PriceKind) (*PricePoint, error)
	GetAllPrices(ctx context.Context, id asset.ID) ([]PricePoint, error)
	PutPrices(ctx context.Context, points []PricePoint) error

	GetFxRate(ctx context.Context, base, quote string, date time.Time, kind FxKind) (*FxRatePoint, error)
	GetAllFxRates(ctx context.Context, base, quote string) ([]FxRatePoint, error)
	PutFxRates(ctx context.Context, points []FxRatePoint) error

	GetAssetEntry(ctx context.Context, id asset.ID) (*AssetRegistryEntry, error)
	UpsertAssetEntry(ctx context.Context, entry AssetRegistryEntry) error
}

// EquityPriceSource fetches equity observations from one remote
// provider. FetchQuote is optional: a source with no live-quote
// capability returns (nil, false, nil).
type EquityPriceSource interface {
	Name() string
	FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*PricePoint, error)
	FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*PricePoint, bool, error)
}

// CryptoPriceSource mirrors EquityPriceSource for crypto assets.
type CryptoPriceSource interface {
	Name() string
	FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*PricePoint, error)
	FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*PricePoint, bool, error)
}

// FxRateSource fetches directional exchange rates from one remote
// provider.
type FxRateSource interface {
	Name() string
	FetchClose(ctx context.Context, base, quote string, date time.Time) (*FxRatePoint, error)
}

// AccountProvider lists the accounts and connections a PortfolioQuery
// or SpendingAggregator runs over, and their balance/transaction
// history. Owned by external collaborators; the core only reads.
type AccountProvider interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	ListConnections(ctx context.Context) ([]Connection, error)
	BalanceSnapshots(ctx context.Context, accountID string) ([]BalanceSnapshot, error)
	Transactions(ctx context.Context, accountID string, start, end *time.Time) ([]Transaction, error)
}

// ValuationResult is the output of valuing one unit of an asset in a
// target currency, retaining the observational fields even when the
// final value is unknown so callers can audit what was and wasn't
// found.
type ValuationResult struct {
	Value         *decimal.Decimal
	Price         *decimal.Decimal
	PriceDate     *time.Time
	PriceTS       *time.Time
	FxRate        *decimal.Decimal
	FxDate        *time.Time
}
