package eodhd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/keepbook/internal/asset"
)

func TestMapExchangeKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "US", mapExchange("NASDAQ"))
	assert.Equal(t, "LSE", mapExchange("XLON"))
	assert.Equal(t, "US", mapExchange("SOMETHING_UNKNOWN"))
}

func TestQuoteCurrencyForExchange(t *testing.T) {
	assert.Equal(t, "GBP", quoteCurrencyForExchange("XLON"))
	assert.Equal(t, "USD", quoteCurrencyForExchange("NASDAQ"))
}

func TestBuildSymbolAppendsExchangeSuffix(t *testing.T) {
	assert.Equal(t, "AAPL.US", buildSymbol("aapl", "NASDAQ"))
}

func TestFetchCloseParsesClosePrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"date":"2024-01-15","close":189.43}]`))
	}))
	defer server.Close()

	src := New("token", zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Equity("AAPL", "NASDAQ")
	id := asset.IDFrom(a)
	point, err := src.FetchClose(context.Background(), a, id, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, "189.43", point.Price.String())
	assert.Equal(t, "eodhd", point.Source)
}

func TestFetchCloseNotFoundYieldsNilNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	src := New("token", zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Equity("AAPL", "NASDAQ")
	point, err := src.FetchClose(context.Background(), a, asset.IDFrom(a), time.Now())
	require.NoError(t, err)
	assert.Nil(t, point)
}
