// Package coingecko implements a crypto price source backed by
// CoinGecko's free coin-history API. No credentials are required.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/money"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// symbolToID maps common crypto ticker symbols to CoinGecko coin ids.
// Unmapped symbols fall through with no result, the same as an upstream
// "not found" response.
var symbolToID = map[string]string{
	"BTC": "bitcoin", "ETH": "ethereum", "USDT": "tether", "USDC": "usd-coin",
	"BNB": "binancecoin", "XRP": "ripple", "ADA": "cardano", "DOGE": "dogecoin",
	"SOL": "solana", "DOT": "polkadot", "MATIC": "matic-network", "POL": "matic-network",
	"LTC": "litecoin", "SHIB": "shiba-inu", "TRX": "tron", "AVAX": "avalanche-2",
	"DAI": "dai", "LINK": "chainlink", "ATOM": "cosmos", "UNI": "uniswap",
	"ETC": "ethereum-classic", "XLM": "stellar", "BCH": "bitcoin-cash", "ALGO": "algorand",
	"FIL": "filecoin", "VET": "vechain", "ICP": "internet-computer", "HBAR": "hedera-hashgraph",
	"NEAR": "near", "APT": "aptos", "ARB": "arbitrum", "OP": "optimism",
	"AAVE": "aave", "MKR": "maker", "XMR": "monero", "ZEC": "zcash",
	"WBTC": "wrapped-bitcoin", "WETH": "weth", "STETH": "staked-ether",
}

// Source is a CoinGecko-backed domain.CryptoPriceSource.
type Source struct {
	httpClient    *http.Client
	baseURL       string
	quoteCurrency string
	customIDs     map[string]string
	log           zerolog.Logger
}

// New returns a Source quoting in USD.
func New(log zerolog.Logger) *Source {
	return &Source{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       defaultBaseURL,
		quoteCurrency: "usd",
		customIDs:     make(map[string]string),
		log:           log.With().Str("source", "coingecko").Logger(),
	}
}

// WithMapping registers a custom symbol -> CoinGecko id override,
// checked before the built-in table.
func (s *Source) WithMapping(symbol, coingeckoID string) *Source {
	s.customIDs[strings.ToUpper(symbol)] = coingeckoID
	return s
}

// Name implements domain.CryptoPriceSource.
func (s *Source) Name() string { return "coingecko" }

func (s *Source) coinID(symbol string) (string, bool) {
	symbol = strings.ToUpper(symbol)
	if id, ok := s.customIDs[symbol]; ok {
		return id, true
	}
	id, ok := symbolToID[symbol]
	return id, ok
}

type historyResponse struct {
	MarketData *struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// FetchClose implements domain.CryptoPriceSource.
func (s *Source) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	if a.Kind != asset.KindCrypto {
		return nil, nil
	}
	coinID, ok := s.coinID(a.Symbol)
	if !ok {
		return nil, nil
	}
	// CoinGecko expects dd-mm-yyyy.
	dateStr := date.Format("02-01-2006")
	url := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false", s.baseURL, coinID, dateStr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("coingecko: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("coingecko: decode response: %w", err)
	}
	if parsed.MarketData == nil {
		return nil, nil
	}
	raw, ok := parsed.MarketData.CurrentPrice[s.quoteCurrency]
	if !ok {
		return nil, nil
	}
	price, err := money.Parse(strconv.FormatFloat(raw, 'f', -1, 64))
	if err != nil {
		return nil, fmt.Errorf("coingecko: parse price: %w", err)
	}
	return &domain.PricePoint{
		AssetID:       id,
		AsOfDate:      date,
		Timestamp:     time.Now(),
		Price:         price,
		QuoteCurrency: strings.ToUpper(s.quoteCurrency),
		Kind:          domain.PriceClose,
		Source:        s.Name(),
	}, nil
}

type simplePriceResponse map[string]map[string]float64

// FetchQuote implements domain.CryptoPriceSource using CoinGecko's
// simple-price endpoint.
func (s *Source) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	if a.Kind != asset.KindCrypto {
		return nil, false, nil
	}
	coinID, ok := s.coinID(a.Symbol)
	if !ok {
		return nil, false, nil
	}
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", s.baseURL, coinID, s.quoteCurrency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("coingecko: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("coingecko: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed simplePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("coingecko: decode response: %w", err)
	}
	raw, ok := parsed[coinID][s.quoteCurrency]
	if !ok {
		return nil, false, nil
	}
	price, err := money.Parse(strconv.FormatFloat(raw, 'f', -1, 64))
	if err != nil {
		return nil, false, fmt.Errorf("coingecko: parse price: %w", err)
	}
	now := time.Now()
	return &domain.PricePoint{
		AssetID:       id,
		AsOfDate:      now,
		Timestamp:     now,
		Price:         price,
		QuoteCurrency: strings.ToUpper(s.quoteCurrency),
		Kind:          domain.PriceQuote,
		Source:        s.Name(),
	}, true, nil
}

var _ domain.CryptoPriceSource = (*Source)(nil)
