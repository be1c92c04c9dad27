// Package portfolio computes valued snapshots of an account's holdings
// and, by replaying change points over the local cache, a history of
// those snapshots across time — without ever invoking a remote
// market-data source.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/asset"
)

// Grouping selects which breakdowns a Snapshot includes.
type Grouping int

const (
	GroupingAsset Grouping = iota
	GroupingAccount
	// GroupingBoth is the default: both breakdowns are populated.
	GroupingBoth
)

// Query parameterizes a single snapshot calculation. AsOfDate is
// day-precision; callers pass midnight UTC of the desired date.
type Query struct {
	AsOfDate time.Time
	Currency string
	// CurrencyDecimals overrides the rendering precision for every
	// monetary string in the result; nil renders the canonical
	// trimmed decimal.
	CurrencyDecimals *int32
	Grouping         Grouping
	IncludeDetail    bool
}

// Snapshot is the valued portfolio at Query.AsOfDate.
type Snapshot struct {
	AsOfDate   time.Time
	Currency   string
	TotalValue string
	ByAsset    []AssetSummary   // nil unless Grouping includes assets
	ByAccount  []AccountSummary // nil unless Grouping includes accounts
}

// AssetSummary is one asset's aggregated holding and valuation across
// every account that holds it.
type AssetSummary struct {
	Asset       asset.Asset
	TotalAmount string
	AmountDate  time.Time // most recent contributing balance date
	Price       *string
	PriceDate   *time.Time
	PriceTS     *time.Time
	FxRate      *string
	FxDate      *time.Time
	ValueInBase *string          // nil if price/FX data unavailable
	Holdings    []AccountHolding // only when Query.IncludeDetail
}

// AccountHolding is one account's contribution to an AssetSummary.
type AccountHolding struct {
	AccountID   string
	AccountName string
	Amount      string
	BalanceDate time.Time
}

// AccountSummary is one account's total value across all its holdings.
type AccountSummary struct {
	AccountID      string
	AccountName    string
	ConnectionName string
	ValueInBase    *string // nil if any held asset lacks a valuation
}

// valuation is the unit-price result for one asset, kept internal: the
// exported AssetSummary/AccountSummary carry only the rendered strings.
type valuation struct {
	value     *decimal.Decimal
	price     *decimal.Decimal
	priceDate *time.Time
	priceTS   *time.Time
	fxRate    *decimal.Decimal
	fxDate    *time.Time
}

// HistoryPoint is one entry in a portfolio history walk.
type HistoryPoint struct {
	Timestamp      time.Time
	Date           time.Time
	TotalValue     string
	ChangeTriggers int // number of triggers that produced this point
}

// HistorySummary compares the first and last points of a history walk.
type HistorySummary struct {
	Initial    string
	Final      string
	Absolute   string
	Percentage string // "N/A" when Initial is zero
}

// History is the result of a portfolio history walk.
type History struct {
	Points  []HistoryPoint
	Summary *HistorySummary // nil unless at least 2 points
}
