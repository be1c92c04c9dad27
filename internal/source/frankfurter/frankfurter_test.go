package frankfurter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) (*Source, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	src := New(zerolog.Nop())
	src.baseURL = server.URL
	return src, server
}

func TestFetchCloseSameCurrencyShortcutsWithoutRequest(t *testing.T) {
	called := false
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`{"rates":{}}`))
	})

	point, err := src.FetchClose(context.Background(), "usd", "USD", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.False(t, called)
	assert.Equal(t, "1", point.Rate.String())
}

func TestFetchCloseEURBaseDirect(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"USD":1.0956}}`))
	})

	point, err := src.FetchClose(context.Background(), "EUR", "USD", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, "1.0956", point.Rate.String())
}

func TestFetchCloseQuoteEURInverts(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"USD":1.0956}}`))
	})

	point, err := src.FetchClose(context.Background(), "USD", "EUR", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.True(t, point.Rate.Sub(decimal.RequireFromString("0.9127")).Abs().LessThan(decimal.RequireFromString("0.001")))
}

func TestFetchCloseCrossRateThroughEUR(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"USD":1.0956,"GBP":0.8623}}`))
	})

	point, err := src.FetchClose(context.Background(), "USD", "GBP", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.True(t, point.Rate.Sub(decimal.RequireFromString("0.7870")).Abs().LessThan(decimal.RequireFromString("0.001")))
}

func TestFetchCloseMissingRateYieldsNilNotError(t *testing.T) {
	src, _ := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{}}`))
	})

	point, err := src.FetchClose(context.Background(), "EUR", "USD", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, point)
}
