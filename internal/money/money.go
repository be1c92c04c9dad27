// Package money carries every monetary quantity in keepbook as a
// github.com/shopspring/decimal.Decimal, parsed from and rendered back
// to canonical decimal strings. No float64 arithmetic is performed on
// amounts, prices, rates, or derived values anywhere in this module.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Parse parses a canonical decimal string. It is the single entry point
// from textual numerals into exact arithmetic.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// MustParse parses s and panics on error. Reserved for literals in tests
// and hardcoded constants (e.g. the identity FX rate).
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders d as a trimmed canonical numeral: trailing fractional
// zeros are stripped, but integral values still render as "0", never as
// the empty string or a bare ".".
func Format(d decimal.Decimal) string {
	return d.String()
}

// FormatWithDecimals rounds d to exactly decimals fractional digits and
// renders it, padding with zeros if necessary. Used when a report has an
// explicit currency_decimals override.
func FormatWithDecimals(d decimal.Decimal, decimals int32) string {
	return d.Round(decimals).StringFixed(decimals)
}

// FormatBaseCurrencyValue renders x per the portfolio report's display
// policy: with an explicit decimals override it is rounded and padded;
// without one it is the canonical trimmed numeral.
func FormatBaseCurrencyValue(x decimal.Decimal, decimals *int32) string {
	if decimals != nil {
		return FormatWithDecimals(x, *decimals)
	}
	return Format(x)
}

// Zero is the additive identity, exported for readability at call sites.
var Zero = decimal.Zero

// One is the multiplicative identity; also used as the identity FX rate.
var One = decimal.NewFromInt(1)

// IsZero reports whether d is exactly zero.
func IsZero(d decimal.Decimal) bool {
	return d.IsZero()
}
