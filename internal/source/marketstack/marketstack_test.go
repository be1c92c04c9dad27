package marketstack

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
	assert.Equal(t, "XNAS", mapExchange("NASDAQ"))
	assert.Equal(t, "XLON", mapExchange("LONDON"))
	assert.Equal(t, "FOO", mapExchange("foo"))
}

func TestBuildSymbolWithAndWithoutExchange(t *testing.T) {
	assert.Equal(t, "AAPL", buildSymbol("aapl", ""))
	assert.Equal(t, "AAPL.XNAS", buildSymbol("aapl", "nasdaq"))
}

func TestFetchCloseParsesEODEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"date":"2024-01-15T00:00:00+0000","close":189.43}]}`))
	}))
	defer server.Close()

	src := New("token", zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Equity("AAPL", "NASDAQ")
	point, err := src.FetchClose(context.Background(), a, asset.IDFrom(a), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, "189.43", point.Price.String())
}

func TestFetchCloseEmptyDataYieldsNilNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	src := New("token", zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Equity("AAPL", "NASDAQ")
	point, err := src.FetchClose(context.Background(), a, asset.IDFrom(a), time.Now())
	require.NoError(t, err)
	assert.Nil(t, point)
}
