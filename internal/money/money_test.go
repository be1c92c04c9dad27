package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	d, err := Parse("123.4500")
	require.NoError(t, err)
	assert.Equal(t, "123.45", Format(d))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-number")
	assert.Error(t, err)
}

func TestFormatWithDecimalsPads(t *testing.T) {
	d := MustParse("1.5")
	assert.Equal(t, "1.50", FormatWithDecimals(d, 2))
}

func TestFormatBaseCurrencyValueNilUsesCanonical(t *testing.T) {
	d := MustParse("10.00")
	assert.Equal(t, "10", FormatBaseCurrencyValue(d, nil))
}

func TestFormatBaseCurrencyValueWithOverride(t *testing.T) {
	d := MustParse("10")
	decimals := int32(2)
	assert.Equal(t, "10.00", FormatBaseCurrencyValue(d, &decimals))
}

func TestIsZero(t *testing.T) {
	assert.True(t, IsZero(MustParse("0.00")))
	assert.False(t, IsZero(MustParse("0.01")))
}
