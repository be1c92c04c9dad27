package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/money"
)

// Service is the cache-then-fetch-then-persist facade over a
// domain.MarketDataStore and the three priority routers. Every public
// accessor checks the store first; a miss falls through to the
// routers, and whatever a router returns is written back to the store
// before being handed to the caller.
type Service struct {
	store        domain.MarketDataStore
	equityRouter *EquityPriceRouter
	cryptoRouter *CryptoPriceRouter
	fxRouter     *FxRateRouter
	lookbackDays int
	quoteStale   *time.Duration
	clock        domain.Clock
	log          zerolog.Logger
}

// New returns a Service backed by store, with a 7-day lookback window
// and quotes always refetched (no staleness cache) until configured
// otherwise via WithQuoteStaleness.
func New(store domain.MarketDataStore, log zerolog.Logger) *Service {
	return &Service{
		store:        store,
		lookbackDays: 7,
		clock:        domain.SystemClock{},
		log:          log.With().Str("component", "market_data_service").Logger(),
	}
}

// Store returns the underlying domain.MarketDataStore, for callers
// (such as portfolio history replay) that need store-only access
// outside Service's own cache-then-fetch accessors.
func (s *Service) Store() domain.MarketDataStore { return s.store }

func (s *Service) WithEquityRouter(r *EquityPriceRouter) *Service { s.equityRouter = r; return s }
func (s *Service) WithCryptoRouter(r *CryptoPriceRouter) *Service { s.cryptoRouter = r; return s }
func (s *Service) WithFxRouter(r *FxRateRouter) *Service         { s.fxRouter = r; return s }

// WithLookbackDays overrides how many calendar days before the
// requested date to search for a close price or FX rate before giving
// up, mirroring non-trading-day gaps in upstream feeds.
func (s *Service) WithLookbackDays(days int) *Service { s.lookbackDays = days; return s }

// WithQuoteStaleness enables a cached-quote fast path: a stored quote
// younger than staleness is returned without consulting any router.
func (s *Service) WithQuoteStaleness(staleness time.Duration) *Service {
	s.quoteStale = &staleness
	return s
}

// WithClock overrides the wall clock, for deterministic tests.
func (s *Service) WithClock(clock domain.Clock) *Service { s.clock = clock; return s }

// PriceClose returns the closing price for a on or before date,
// walking backward day by day up to lookbackDays before giving up. A
// store hit short-circuits the source routers; a router hit is
// persisted to the store before being returned.
func (s *Service) PriceClose(ctx context.Context, a asset.Asset, date time.Time) (*domain.PricePoint, error) {
	id := asset.IDFrom(a)

	for offset := 0; offset <= s.lookbackDays; offset++ {
		target := date.AddDate(0, 0, -offset)

		cached, err := s.store.GetPrice(ctx, id, target, domain.PriceClose)
		if err != nil {
			return nil, fmt.Errorf("market_data: read cached close price: %w", err)
		}
		if cached != nil {
			return cached, nil
		}

		fetched, err := s.fetchCloseFromRouter(ctx, a, id, target)
		if err != nil {
			return nil, err
		}
		if fetched != nil {
			if err := s.store.PutPrices(ctx, []domain.PricePoint{*fetched}); err != nil {
				return nil, fmt.Errorf("market_data: persist fetched close price: %w", err)
			}
			return fetched, nil
		}
	}

	return nil, fmt.Errorf("market_data: %s on or before %s: %w", id, date.Format("2006-01-02"), domain.ErrNoClosePrice)
}

// PriceLatest returns the freshest available price: a fresh cached
// quote if WithQuoteStaleness is configured and the cache is within
// staleness, else a freshly fetched live quote, else the closing price
// via PriceClose.
func (s *Service) PriceLatest(ctx context.Context, a asset.Asset, date time.Time) (*domain.PricePoint, error) {
	id := asset.IDFrom(a)

	if s.quoteStale != nil {
		cached, err := s.store.GetPrice(ctx, id, date, domain.PriceQuote)
		if err != nil {
			return nil, fmt.Errorf("market_data: read cached quote: %w", err)
		}
		if cached != nil && s.clock.Now().Sub(cached.Timestamp) < *s.quoteStale {
			return cached, nil
		}
	}

	fetched, err := s.fetchQuoteFromRouter(ctx, a, id)
	if err != nil {
		return nil, err
	}
	if fetched != nil {
		if err := s.store.PutPrices(ctx, []domain.PricePoint{*fetched}); err != nil {
			return nil, fmt.Errorf("market_data: persist fetched quote: %w", err)
		}
		return fetched, nil
	}

	return s.PriceClose(ctx, a, date)
}

// PriceFromStore reads the closing price directly from the store with
// no fallback to any router, for callers that must never make a
// network call (e.g. offline valuation, historical backfill).
func (s *Service) PriceFromStore(ctx context.Context, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	return s.store.GetPrice(ctx, id, date, domain.PriceClose)
}

// FxClose returns the FX rate for base->quote on or before date, with
// the same cache-then-fetch-then-persist and lookback semantics as
// PriceClose. base == quote is the identity case and always returns a
// synthetic rate of 1 without consulting the store or any router.
func (s *Service) FxClose(ctx context.Context, base, quote string, date time.Time) (*domain.FxRatePoint, error) {
	if base == quote {
		return &domain.FxRatePoint{Base: base, Quote: quote, AsOfDate: date, Timestamp: date, Rate: money.One, Kind: domain.FxClose}, nil
	}

	for offset := 0; offset <= s.lookbackDays; offset++ {
		target := date.AddDate(0, 0, -offset)

		cached, err := s.store.GetFxRate(ctx, base, quote, target, domain.FxClose)
		if err != nil {
			return nil, fmt.Errorf("market_data: read cached fx rate: %w", err)
		}
		if cached != nil {
			return cached, nil
		}

		if s.fxRouter != nil {
			fetched, err := s.fxRouter.FetchClose(ctx, base, quote, target)
			if err != nil {
				return nil, fmt.Errorf("market_data: fetch fx rate: %w", err)
			}
			if fetched != nil {
				if err := s.store.PutFxRates(ctx, []domain.FxRatePoint{*fetched}); err != nil {
					return nil, fmt.Errorf("market_data: persist fetched fx rate: %w", err)
				}
				return fetched, nil
			}
		}
	}

	return nil, fmt.Errorf("market_data: %s->%s on or before %s: %w", base, quote, date.Format("2006-01-02"), domain.ErrNoFxRate)
}

// FxFromStore reads the FX rate directly from the store with no
// router fallback. base == quote is the identity case and always
// returns a synthetic rate of 1 without touching the store.
func (s *Service) FxFromStore(ctx context.Context, base, quote string, date time.Time) (*domain.FxRatePoint, error) {
	if base == quote {
		return &domain.FxRatePoint{Base: base, Quote: quote, AsOfDate: date, Timestamp: date, Rate: money.One, Kind: domain.FxClose}, nil
	}
	return s.store.GetFxRate(ctx, base, quote, date, domain.FxClose)
}

// RegisterAsset writes a registry entry for a if one doesn't already exist.
func (s *Service) RegisterAsset(ctx context.Context, a asset.Asset) error {
	id := asset.IDFrom(a)
	existing, err := s.store.GetAssetEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("market_data: read asset entry: %w", err)
	}
	if existing != nil {
		return nil
	}
	return s.store.UpsertAssetEntry(ctx, domain.AssetRegistryEntry{ID: id, Asset: a, ProviderIDs: map[string]string{}})
}

// StorePrice persists a price point produced outside the router
// pipeline, e.g. by an account synchronizer that observes a price
// incidentally.
func (s *Service) StorePrice(ctx context.Context, price domain.PricePoint) error {
	return s.store.PutPrices(ctx, []domain.PricePoint{price})
}

func (s *Service) fetchCloseFromRouter(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	switch a.Kind {
	case asset.KindEquity:
		if s.equityRouter == nil {
			return nil, nil
		}
		price, err := s.equityRouter.FetchClose(ctx, a, id, date)
		if err != nil {
			return nil, fmt.Errorf("market_data: fetch equity close: %w", err)
		}
		return price, nil
	case asset.KindCrypto:
		if s.cryptoRouter == nil {
			return nil, nil
		}
		price, err := s.cryptoRouter.FetchClose(ctx, a, id, date)
		if err != nil {
			return nil, fmt.Errorf("market_data: fetch crypto close: %w", err)
		}
		return price, nil
	default:
		return nil, nil
	}
}

func (s *Service) fetchQuoteFromRouter(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, error) {
	switch a.Kind {
	case asset.KindEquity:
		if s.equityRouter == nil {
			return nil, nil
		}
		price, err := s.equityRouter.FetchQuote(ctx, a, id)
		if err != nil {
			return nil, fmt.Errorf("market_data: fetch equity quote: %w", err)
		}
		return price, nil
	case asset.KindCrypto:
		if s.cryptoRouter == nil {
			return nil, nil
		}
		price, err := s.cryptoRouter.FetchQuote(ctx, a, id)
		if err != nil {
			return nil, fmt.Errorf("market_data: fetch crypto quote: %w", err)
		}
		return price, nil
	default:
		return nil, nil
	}
}
