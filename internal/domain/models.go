// Package domain holds the data model shared across keepbook's
// market-data, portfolio, change-point, and spending packages, plus the
// narrow cross-cutting interfaces (Clock and the external-collaborator
// contracts) that let those packages depend on each other without
// import cycles.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/asset"
)

// PriceKind discriminates the observation kinds a PricePoint can carry.
// Rank for store ordering: Close=0, AdjClose=1, Quote=2.
type PriceKind int

const (
	PriceClose PriceKind = iota
	PriceAdjClose
	PriceQuote
)

// KindRank returns the ordering rank used when serializing a year file.
func (k PriceKind) KindRank() int {
	switch k {
	case PriceClose:
		return 0
	case PriceAdjClose:
		return 1
	case PriceQuote:
		return 2
	default:
		return 3
	}
}

func (k PriceKind) String() string {
	switch k {
	case PriceClose:
		return "close"
	case PriceAdjClose:
		return "adj_close"
	case PriceQuote:
		return "quote"
	default:
		return "unknown"
	}
}

// FxKind discriminates FxRatePoint observation kinds. Only Close exists
// today.
type FxKind int

const (
	FxClose FxKind = iota
)

func (k FxKind) String() string { return "close" }

// PricePoint is a single observation of an asset's price.
type PricePoint struct {
	AssetID       asset.ID
	AsOfDate      time.Time // effective date of the observation (day precision)
	Timestamp     time.Time // when the observation was recorded; tiebreaker
	Price         decimal.Decimal
	QuoteCurrency string
	Kind          PriceKind
	Source        string
}

// FxRatePoint is a single observation of a directional exchange rate.
type FxRatePoint struct {
	Base      string
	Quote     string
	AsOfDate  time.Time
	Timestamp time.Time
	Rate      decimal.Decimal
	Kind      FxKind
	Source    string
}

// AssetRegistryEntry records the mapping between a canonical asset and
// each source's notion of it. The registry is append-only; the latest
// entry for a given ID wins on read.
type AssetRegistryEntry struct {
	ID          asset.ID
	Asset       asset.Asset
	ProviderIDs map[string]string // source name -> external id
	Timezone    string            // optional, e.g. exchange timezone
}

// Account is an external collaborator record. The core only needs these
// fields to compute valuations; the rest of the account's lifecycle is
// owned by the synchronizer that produced it.
type Account struct {
	ID           string
	Name         string
	ConnectionID string
	Tags         []string
	CreatedAt    time.Time
	Active       bool

	// BalanceBackfill controls what PortfolioService does when no
	// snapshot exists at or before the query date.
	BalanceBackfill BackfillPolicy

	// BalanceStaleness overrides the connection/global default
	// staleness threshold for this account; nil inherits.
	BalanceStaleness *time.Duration
}

// BackfillPolicy controls how a missing balance snapshot is filled.
type BackfillPolicy int

const (
	BackfillNone BackfillPolicy = iota
	BackfillZero
	BackfillCarryEarliest
)

// Connection is an external collaborator record.
type Connection struct {
	ID               string
	Name             string
	Synchronizer     string
	AccountIDs       []string
	Status           string
	LastSync         *time.Time
	BalanceStaleness *time.Duration // connection-level override
}

// AssetBalance is one line of a BalanceSnapshot.
type AssetBalance struct {
	Asset  asset.Asset
	Amount decimal.Decimal
}

// BalanceSnapshot is the complete holdings of one account at one
// instant. Snapshots are append-only and atomic: readers never observe
// a partial snapshot.
type BalanceSnapshot struct {
	Timestamp time.Time
	Balances  []AssetBalance
}

// TransactionStatus is a transaction's lifecycle state.
type TransactionStatus int

const (
	StatusPending TransactionStatus = iota
	StatusPosted
	StatusReversed
	StatusCanceled
	StatusFailed
)

// Annotation is the materialized (folded) per-transaction annotation
// state.
type Annotation struct {
	Description *string
	Note        *string
	Category    *string
	Tags        []string
}

// Transaction is an external collaborator record.
type Transaction struct {
	ID          string
	Timestamp   time.Time
	Amount      decimal.Decimal // signed: negative = outflow
	Asset       asset.Asset
	Description string
	Status      TransactionStatus
	Annotation  *Annotation // materialized, nil if never annotated
}

// ChangeTriggerKind discriminates ChangePoint.Triggers entries.
type ChangeTriggerKind int

const (
	TriggerBalance ChangeTriggerKind = iota
	TriggerPrice
	TriggerFxRate
)

// ChangeTrigger is one reason a ChangePoint exists.
type ChangeTrigger struct {
	Kind ChangeTriggerKind

	// TriggerBalance
	AccountID string
	Asset     asset.Asset

	// TriggerPrice
	PriceAssetID asset.ID

	// TriggerFxRate
	FxBase  string
	FxQuote string
}

// ChangePoint is a timestamp at which the portfolio's value could have
// changed, with the triggers that produced it. Points at the same
// timestamp merge their trigger lists.
type ChangePoint struct {
	Timestamp time.Time
	Triggers  []ChangeTrigger
}

// Clock abstracts "now" so services are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a deterministic Clock for tests.
type FixedClock struct {
	At time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.At }
