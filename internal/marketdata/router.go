// Package marketdata implements the priority-ordered source routers
// and the MarketDataService that composes them with a
// domain.MarketDataStore into a cache-then-fetch-then-persist pipeline.
package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
)

// EquityPriceRouter fans a request out across equity price sources in
// priority order: the first source to return a non-nil price wins. A
// source returning (nil, nil) is tried as "has no data"; a source
// returning an error is logged and skipped. The router never aborts
// on an individual source's failure — only exhausting every source
// without a hit is reported upward as "no data."
type EquityPriceRouter struct {
	sources []domain.EquityPriceSource
	log     zerolog.Logger
}

// NewEquityPriceRouter returns a router trying sources in the given order.
func NewEquityPriceRouter(sources []domain.EquityPriceSource, log zerolog.Logger) *EquityPriceRouter {
	return &EquityPriceRouter{sources: sources, log: log.With().Str("component", "equity_router").Logger()}
}

// FetchClose implements the priority fan-out for end-of-day prices.
func (r *EquityPriceRouter) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	for _, source := range r.sources {
		price, err := source.FetchClose(ctx, a, id, date)
		if err != nil {
			r.log.Warn().Err(err).Str("source", source.Name()).Str("asset_id", string(id)).Msg("equity close fetch failed")
			continue
		}
		if price != nil {
			r.log.Info().Str("source", source.Name()).Str("asset_id", string(id)).Str("price", price.Price.String()).Msg("equity close fetched")
			return price, nil
		}
	}
	return nil, nil
}

// FetchQuote implements the priority fan-out for live quotes.
func (r *EquityPriceRouter) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, error) {
	for _, source := range r.sources {
		price, _, err := source.FetchQuote(ctx, a, id)
		if err != nil {
			r.log.Warn().Err(err).Str("source", source.Name()).Str("asset_id", string(id)).Msg("equity quote fetch failed")
			continue
		}
		if price != nil {
			r.log.Info().Str("source", source.Name()).Str("asset_id", string(id)).Str("price", price.Price.String()).Msg("equity quote fetched")
			return price, nil
		}
	}
	return nil, nil
}

// CryptoPriceRouter is the crypto-asset analogue of EquityPriceRouter.
type CryptoPriceRouter struct {
	sources []domain.CryptoPriceSource
	log     zerolog.Logger
}

// NewCryptoPriceRouter returns a router trying sources in the given order.
func NewCryptoPriceRouter(sources []domain.CryptoPriceSource, log zerolog.Logger) *CryptoPriceRouter {
	return &CryptoPriceRouter{sources: sources, log: log.With().Str("component", "crypto_router").Logger()}
}

// FetchClose implements the priority fan-out for end-of-day prices.
func (r *CryptoPriceRouter) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	for _, source := range r.sources {
		price, err := source.FetchClose(ctx, a, id, date)
		if err != nil {
			r.log.Warn().Err(err).Str("source", source.Name()).Str("asset_id", string(id)).Msg("crypto close fetch failed")
			continue
		}
		if price != nil {
			r.log.Info().Str("source", source.Name()).Str("asset_id", string(id)).Str("price", price.Price.String()).Msg("crypto close fetched")
			return price, nil
		}
	}
	return nil, nil
}

// FetchQuote implements the priority fan-out for live quotes.
func (r *CryptoPriceRouter) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, error) {
	for _, source := range r.sources {
		price, _, err := source.FetchQuote(ctx, a, id)
		if err != nil {
			r.log.Warn().Err(err).Str("source", source.Name()).Str("asset_id", string(id)).Msg("crypto quote fetch failed")
			continue
		}
		if price != nil {
			r.log.Info().Str("source", source.Name()).Str("asset_id", string(id)).Str("price", price.Price.String()).Msg("crypto quote fetched")
			return price, nil
		}
	}
	return nil, nil
}

// FxRateRouter fans an FX rate request out across configured sources
// in priority order, same semantics as the price routers.
type FxRateRouter struct {
	sources []domain.FxRateSource
	log     zerolog.Logger
}

// NewFxRateRouter returns a router trying sources in the given order.
func NewFxRateRouter(sources []domain.FxRateSource, log zerolog.Logger) *FxRateRouter {
	return &FxRateRouter{sources: sources, log: log.With().Str("component", "fx_router").Logger()}
}

// FetchClose implements the priority fan-out for FX rates.
func (r *FxRateRouter) FetchClose(ctx context.Context, base, quote string, date time.Time) (*domain.FxRatePoint, error) {
	for _, source := range r.sources {
		rate, err := source.FetchClose(ctx, base, quote, date)
		if err != nil {
			r.log.Warn().Err(err).Str("source", source.Name()).Str("base", base).Str("quote", quote).Msg("fx fetch failed")
			continue
		}
		if rate != nil {
			r.log.Info().Str("source", source.Name()).Str("base", base).Str("quote", quote).Str("rate", rate.Rate.String()).Msg("fx rate fetched")
			return rate, nil
		}
	}
	return nil, nil
}
