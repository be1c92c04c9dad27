package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
)

type stubEquitySource struct {
	name        string
	closePrice  *domain.PricePoint
	closeErr    error
	quotePrice  *domain.PricePoint
	quoteOK     bool
	quoteErr    error
	closeCalled int
}

func (s *stubEquitySource) Name() string { return s.name }
func (s *stubEquitySource) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	s.closeCalled++
	return s.closePrice, s.closeErr
}
func (s *stubEquitySource) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	return s.quotePrice, s.quoteOK, s.quoteErr
}

func TestEquityPriceRouterReturnsFirstHit(t *testing.T) {
	price := &domain.PricePoint{Price: decimal.RequireFromString("100")}
	first := &stubEquitySource{name: "first", closePrice: nil}
	second := &stubEquitySource{name: "second", closePrice: price}
	third := &stubEquitySource{name: "third", closePrice: &domain.PricePoint{Price: decimal.RequireFromString("999")}}

	router := NewEquityPriceRouter([]domain.EquityPriceSource{first, second, third}, zerolog.Nop())
	a := asset.Equity("AAPL", "")
	got, err := router.FetchClose(context.Background(), a, asset.IDFrom(a), time.Now())

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Price.Equal(price.Price))
	assert.Equal(t, 1, first.closeCalled)
	assert.Equal(t, 1, second.closeCalled)
	assert.Equal(t, 0, third.closeCalled)
}

func TestEquityPriceRouterSkipsErroringSourceAndContinues(t *testing.T) {
	price := &domain.PricePoint{Price: decimal.RequireFromString("50")}
	failing := &stubEquitySource{name: "failing", closeErr: errors.New("rate limited")}
	working := &stubEquitySource{name: "working", closePrice: price}

	router := NewEquityPriceRouter([]domain.EquityPriceSource{failing, working}, zerolog.Nop())
	a := asset.Equity("AAPL", "")
	got, err := router.FetchClose(context.Background(), a, asset.IDFrom(a), time.Now())

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Price.Equal(price.Price))
}

func TestEquityPriceRouterExhaustsAllSourcesReturnsNil(t *testing.T) {
	a := asset.Equity("AAPL", "")
	router := NewEquityPriceRouter([]domain.EquityPriceSource{
		&stubEquitySource{name: "a"},
		&stubEquitySource{name: "b", closeErr: errors.New("down")},
	}, zerolog.Nop())

	got, err := router.FetchClose(context.Background(), a, asset.IDFrom(a), time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

type stubFxSource struct {
	name string
	rate *domain.FxRatePoint
	err  error
}

func (s *stubFxSource) Name() string { return s.name }
func (s *stubFxSource) FetchClose(ctx context.Context, base, quote string, date time.Time) (*domain.FxRatePoint, error) {
	return s.rate, s.err
}

func TestFxRateRouterReturnsFirstHit(t *testing.T) {
	rate := &domain.FxRatePoint{Rate: decimal.RequireFromString("1.1")}
	router := NewFxRateRouter([]domain.FxRateSource{
		&stubFxSource{name: "a", err: errors.New("down")},
		&stubFxSource{name: "b", rate: rate},
	}, zerolog.Nop())

	got, err := router.FetchClose(context.Background(), "USD", "EUR", time.Now())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Rate.Equal(rate.Rate))
}
