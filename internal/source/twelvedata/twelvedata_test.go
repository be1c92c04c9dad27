package twelvedata

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

func TestSymbolForAppendsExchange(t *testing.T) {
	assert.Equal(t, "AAPL", symbolFor(asset.Equity("aapl", "")))
	assert.Equal(t, "VOD:LSE", symbolFor(asset.Equity("vod", "lse")))
}

func TestFetchCloseParsesTimeSeries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"values":[{"datetime":"2024-01-15","close":"189.43"}],"status":"ok"}`))
	}))
	defer server.Close()

	src := New("token", zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Equity("AAPL", "")
	point, err := src.FetchClose(context.Background(), a, asset.IDFrom(a), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, "189.43", point.Price.String())
}

func TestFetchCloseErrorStatusYieldsNilNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","code":429,"message":"rate limit"}`))
	}))
	defer server.Close()

	src := New("token", zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Equity("AAPL", "")
	point, err := src.FetchClose(context.Background(), a, asset.IDFrom(a), time.Now())
	require.NoError(t, err)
	assert.Nil(t, point)
}

func TestFetchQuoteParsesPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price":"190.12"}`))
	}))
	defer server.Close()

	src := New("token", zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Equity("AAPL", "")
	point, ok, err := src.FetchQuote(context.Background(), a, asset.IDFrom(a))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotNil(t, point)
	assert.Equal(t, "190.12", point.Price.String())
}
