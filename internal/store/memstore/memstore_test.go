package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/money"
)

func TestGetPriceReturnsLatestTimestamp(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := asset.IDFrom(asset.Currency("USD"))
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutPrices(ctx, []domain.PricePoint{
		{AssetID: id, AsOfDate: date, Timestamp: date, Price: money.MustParse("1"), Kind: domain.PriceClose, Source: "a"},
		{AssetID: id, AsOfDate: date, Timestamp: date.Add(time.Hour), Price: money.MustParse("2"), Kind: domain.PriceClose, Source: "b"},
	}))

	got, err := s.GetPrice(ctx, id, date, domain.PriceClose)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2", money.Format(got.Price))
}

// TestGetPriceReturnsLastInsertedOnExactTimestampTie exercises a
// genuine tie: both points share the same Timestamp, so the result
// must be the later-inserted one, not whichever happened to be
// scanned first.
func TestGetPriceReturnsLastInsertedOnExactTimestampTie(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := asset.IDFrom(asset.Currency("USD"))
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutPrices(ctx, []domain.PricePoint{
		{AssetID: id, AsOfDate: date, Timestamp: date, Price: money.MustParse("1"), Kind: domain.PriceClose, Source: "a"},
		{AssetID: id, AsOfDate: date, Timestamp: date, Price: money.MustParse("2"), Kind: domain.PriceClose, Source: "b"},
	}))

	got, err := s.GetPrice(ctx, id, date, domain.PriceClose)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2", money.Format(got.Price))
}

func TestMissingEntryReturnsNilNotError(t *testing.T) {
	s := New()
	got, err := s.GetAssetEntry(context.Background(), asset.ID("crypto/NOPE"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetAllPricesSortsByTimestamp(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := asset.IDFrom(asset.Equity("AAPL", ""))
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.PutPrices(ctx, []domain.PricePoint{
		{AssetID: id, AsOfDate: t2, Timestamp: t2, Price: money.MustParse("2"), Kind: domain.PriceClose},
		{AssetID: id, AsOfDate: t1, Timestamp: t1, Price: money.MustParse("1"), Kind: domain.PriceClose},
	}))

	all, err := s.GetAllPrices(ctx, id)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Timestamp.Before(all[1].Timestamp))
}
