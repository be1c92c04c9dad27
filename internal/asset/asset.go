// Package asset implements keepbook's Asset tagged union: Currency,
// Equity, and Crypto, with mandatory normalization before the value is
// used as a hash key, compared for equality, or stringified into an
// AssetId.
package asset

import (
	"fmt"
	"strings"
)

// Kind discriminates the three Asset cases.
type Kind int

const (
	// KindCurrency is an ISO-4217 fiat currency.
	KindCurrency Kind = iota
	// KindEquity is an exchange-traded security.
	KindEquity
	// KindCrypto is a cryptocurrency or token.
	KindCrypto
)

func (k Kind) String() string {
	switch k {
	case KindCurrency:
		return "currency"
	case KindEquity:
		return "equity"
	case KindCrypto:
		return "crypto"
	default:
		return "unknown"
	}
}

// Asset is the tagged union of keepbook's supported holdings. Only the
// fields for the active Kind are meaningful; zero-value the rest.
type Asset struct {
	Kind Kind

	// Currency
	ISOCode string

	// Equity
	Ticker   string
	Exchange string // optional

	// Crypto
	Symbol  string
	Network string // optional
}

// isoNumericToAlpha maps the handful of ISO-4217 numeric codes that show
// up in upstream balance feeds to their alpha-3 equivalent. Extend as
// new numeric codes are observed; an unknown numeric code is left as-is
// (uppercased), which keeps normalization total rather than partial.
var isoNumericToAlpha = map[string]string{
	"840": "USD",
	"978": "EUR",
	"826": "GBP",
	"392": "JPY",
	"756": "CHF",
	"124": "CAD",
	"036": "AUD",
	"344": "HKD",
	"702": "SGD",
	"752": "SEK",
	"578": "NOK",
	"208": "DKK",
}

// Currency constructs a normalized Currency asset from a raw ISO code
// (alpha or numeric, any case, possibly padded with whitespace).
func Currency(isoCode string) Asset {
	return Asset{Kind: KindCurrency, ISOCode: normalizeCurrencyCode(isoCode)}
}

// Equity constructs a normalized Equity asset. exchange may be empty.
func Equity(ticker, exchange string) Asset {
	return Asset{
		Kind:     KindEquity,
		Ticker:   strings.ToUpper(strings.TrimSpace(ticker)),
		Exchange: strings.ToUpper(strings.TrimSpace(exchange)),
	}
}

// Crypto constructs a normalized Crypto asset. network may be empty.
func Crypto(symbol, network string) Asset {
	return Asset{
		Kind:    KindCrypto,
		Symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		Network: strings.ToLower(strings.TrimSpace(network)),
	}
}

func normalizeCurrencyCode(code string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if alpha, ok := isoNumericToAlpha[trimmed]; ok {
		return alpha
	}
	return trimmed
}

// Normalized returns a by-value copy of a with every field canonicalized.
// Calling it twice is the identity.
func (a Asset) Normalized() Asset {
	switch a.Kind {
	case KindCurrency:
		return Currency(a.ISOCode)
	case KindEquity:
		return Equity(a.Ticker, a.Exchange)
	case KindCrypto:
		return Crypto(a.Symbol, a.Network)
	default:
		return a
	}
}

// Equal reports whether a and b denote the same normalized asset.
func (a Asset) Equal(b Asset) bool {
	return a.Normalized() == b.Normalized()
}

// ID is the canonical, path-safe stringification of a normalized Asset,
// e.g. "currency/USD", "equity/AAPL", "equity/AAPL/XNAS", "crypto/ETH",
// "crypto/ETH/arbitrum". It doubles as a filesystem directory name and
// as a map key.
type ID string

// IDFrom returns the canonical AssetId for a, normalizing first so that
// IDFrom(a) == IDFrom(a.Normalized()) always holds.
func IDFrom(a Asset) ID {
	n := a.Normalized()
	switch n.Kind {
	case KindCurrency:
		return ID(fmt.Sprintf("currency/%s", n.ISOCode))
	case KindEquity:
		if n.Exchange != "" {
			return ID(fmt.Sprintf("equity/%s/%s", n.Ticker, n.Exchange))
		}
		return ID(fmt.Sprintf("equity/%s", n.Ticker))
	case KindCrypto:
		if n.Network != "" {
			return ID(fmt.Sprintf("crypto/%s/%s", n.Symbol, n.Network))
		}
		return ID(fmt.Sprintf("crypto/%s", n.Symbol))
	default:
		return ""
	}
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// IsCurrency reports whether a denotes a Currency asset.
func (a Asset) IsCurrency() bool { return a.Kind == KindCurrency }
