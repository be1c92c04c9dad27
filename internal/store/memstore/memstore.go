// Package memstore is an in-memory domain.MarketDataStore used by unit
// tests that exercise market-data, portfolio, and spending logic
// without touching the filesystem.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
)

// Store is a mutex-guarded, in-memory domain.MarketDataStore.
type Store struct {
	mu      sync.Mutex
	prices  map[asset.ID][]domain.PricePoint
	fx      map[fxKey][]domain.FxRatePoint
	entries map[asset.ID][]domain.AssetRegistryEntry
}

type fxKey struct{ base, quote string }

// New returns an empty Store.
func New() *Store {
	return &Store{
		prices:  make(map[asset.ID][]domain.PricePoint),
		fx:      make(map[fxKey][]domain.FxRatePoint),
		entries: make(map[asset.ID][]domain.AssetRegistryEntry),
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// GetPrice implements domain.MarketDataStore.
func (s *Store) GetPrice(ctx context.Context, id asset.ID, date time.Time, kind domain.PriceKind) (*domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.PricePoint
	for _, p := range s.prices[id] {
		if p.Kind != kind || !sameDate(p.AsOfDate, date) {
			continue
		}
		if best == nil || !p.Timestamp.Before(best.Timestamp) {
			cp := p
			best = &cp
		}
	}
	return best, nil
}

// GetAllPrices implements domain.MarketDataStore.
func (s *Store) GetAllPrices(ctx context.Context, id asset.ID) ([]domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.PricePoint(nil), s.prices[id]...)
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Timestamp.Before(out[i].Timestamp) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// PutPrices implements domain.MarketDataStore.
func (s *Store) PutPrices(ctx context.Context, points []domain.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.prices[p.AssetID] = append(s.prices[p.AssetID], p)
	}
	return nil
}

// GetFxRate implements domain.MarketDataStore.
func (s *Store) GetFxRate(ctx context.Context, base, quote string, date time.Time, kind domain.FxKind) (*domain.FxRatePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.FxRatePoint
	for _, r := range s.fx[fxKey{base, quote}] {
		if r.Kind != kind || !sameDate(r.AsOfDate, date) {
			continue
		}
		if best == nil || !r.Timestamp.Before(best.Timestamp) {
			cp := r
			best = &cp
		}
	}
	return best, nil
}

// GetAllFxRates implements domain.MarketDataStore.
func (s *Store) GetAllFxRates(ctx context.Context, base, quote string) ([]domain.FxRatePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.FxRatePoint(nil), s.fx[fxKey{base, quote}]...)
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Timestamp.Before(out[i].Timestamp) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

// PutFxRates implements domain.MarketDataStore.
func (s *Store) PutFxRates(ctx context.Context, rates []domain.FxRatePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rates {
		k := fxKey{r.Base, r.Quote}
		s.fx[k] = append(s.fx[k], r)
	}
	return nil
}

// GetAssetEntry implements domain.MarketDataStore.
func (s *Store) GetAssetEntry(ctx context.Context, id asset.ID) (*domain.AssetRegistryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[id]
	if len(list) == 0 {
		return nil, nil
	}
	entry := list[len(list)-1]
	return &entry, nil
}

// UpsertAssetEntry implements domain.MarketDataStore.
func (s *Store) UpsertAssetEntry(ctx context.Context, entry domain.AssetRegistryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = append(s.entries[entry.ID], entry)
	return nil
}

var _ domain.MarketDataStore = (*Store)(nil)
