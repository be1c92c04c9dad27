package cryptocompare

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

func TestFetchCloseParsesHistoDay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":"Success","Data":{"Data":[{"time":1705276800,"close":42000.5}]}}`))
	}))
	defer server.Close()

	src := New(zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Crypto("BTC", "")
	point, err := src.FetchClose(context.Background(), a, asset.IDFrom(a), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, point)
	assert.Equal(t, "42000.5", point.Price.String())
}

func TestFetchCloseErrorResponseSurfacesMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":"Error","Message":"unknown symbol"}`))
	}))
	defer server.Close()

	src := New(zerolog.Nop())
	src.baseURL = server.URL

	a := asset.Crypto("BTC", "")
	_, err := src.FetchClose(context.Background(), a, asset.IDFrom(a), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown symbol")
}

func TestAuthHeaderOnlySetWhenKeyPresent(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"USD":42000.5}`))
	}))
	defer server.Close()

	src := New(zerolog.Nop()).WithAPIKey("secret")
	src.baseURL = server.URL

	a := asset.Crypto("BTC", "")
	_, _, err := src.FetchQuote(context.Background(), a, asset.IDFrom(a))
	require.NoError(t, err)
	assert.Equal(t, "Apikey secret", gotAuth)
}
