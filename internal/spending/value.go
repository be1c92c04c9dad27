package spending

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/marketdata"
	"github.com/aristath/keepbook/internal/money"
)

// missingKind names why valueInReportingCurrency could not convert a
// row, so the caller can attribute it to the right counter.
type missingKind int

const (
	missingNone missingKind = iota
	missingPrice
	missingFx
)

// valueInReportingCurrency converts amount of a (already normalized)
// asset into reportingCurrency as of asOfDate, reading only the
// market-data store — never a remote router — mirroring
// PortfolioService's unit-price policy.
func valueInReportingCurrency(ctx context.Context, market *marketdata.Service, a asset.Asset, amount decimal.Decimal, reportingCurrency string, asOfDate time.Time, decimals *int32) (*string, missingKind, error) {
	switch a.Kind {
	case asset.KindCurrency:
		if a.ISOCode == reportingCurrency {
			v := money.FormatBaseCurrencyValue(amount, decimals)
			return &v, missingNone, nil
		}
		rate, err := market.FxFromStore(ctx, a.ISOCode, reportingCurrency, asOfDate)
		if err != nil {
			return nil, missingNone, err
		}
		if rate == nil {
			return nil, missingFx, nil
		}
		v := money.FormatBaseCurrencyValue(amount.Mul(rate.Rate), decimals)
		return &v, missingNone, nil

	default: // KindEquity, KindCrypto
		price, err := market.PriceFromStore(ctx, asset.IDFrom(a), asOfDate)
		if err != nil {
			return nil, missingNone, err
		}
		if price == nil {
			return nil, missingPrice, nil
		}
		valueInQuote := amount.Mul(price.Price)

		if price.QuoteCurrency == reportingCurrency {
			v := money.FormatBaseCurrencyValue(valueInQuote, decimals)
			return &v, missingNone, nil
		}

		rate, err := market.FxFromStore(ctx, price.QuoteCurrency, reportingCurrency, asOfDate)
		if err != nil {
			return nil, missingNone, err
		}
		if rate == nil {
			return nil, missingFx, nil
		}
		v := money.FormatBaseCurrencyValue(valueInQuote.Mul(rate.Rate), decimals)
		return &v, missingNone, nil
	}
}
