package refdata

import "github.com/aristath/keepbook/internal/asset"

// encodeAsset flattens a into the three columns shared by every table
// that stores an asset: currency -> (0, isoCode, ""), equity -> (1,
// ticker, exchange), crypto -> (2, symbol, network).
func encodeAsset(a asset.Asset) (kind int, code string, venue string) {
	n := a.Normalized()
	switch n.Kind {
	case asset.KindCurrency:
		return int(asset.KindCurrency), n.ISOCode, ""
	case asset.KindEquity:
		return int(asset.KindEquity), n.Ticker, n.Exchange
	default: // KindCrypto
		return int(asset.KindCrypto), n.Symbol, n.Network
	}
}

// decodeAsset reverses encodeAsset.
func decodeAsset(kind int, code, venue string) asset.Asset {
	switch asset.Kind(kind) {
	case asset.KindCurrency:
		return asset.Currency(code)
	case asset.KindEquity:
		return asset.Equity(code, venue)
	default:
		return asset.Crypto(code, venue)
	}
}
