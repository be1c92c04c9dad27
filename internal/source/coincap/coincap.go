// Package coincap implements a crypto price source backed by CoinCap's
// historical-price endpoint. An API key is optional.
package coincap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/money"
)

const defaultBaseURL = "https://api.coincap.io/v2"

// symbolToID maps ticker symbols to CoinCap asset ids (lowercase slugs,
// mostly matching CoinGecko's naming for common assets).
var symbolToID = map[string]string{
	"BTC": "bitcoin", "ETH": "ethereum", "USDT": "tether", "USDC": "usd-coin",
	"BNB": "binance-coin", "XRP": "xrp", "ADA": "cardano", "DOGE": "dogecoin",
	"SOL": "solana", "DOT": "polkadot", "LTC": "litecoin", "AVAX": "avalanche",
	"LINK": "chainlink", "MATIC": "polygon", "UNI": "uniswap",
}

// Source is a CoinCap-backed domain.CryptoPriceSource.
type Source struct {
	apiKey     string // optional
	httpClient *http.Client
	baseURL    string
	customIDs  map[string]string
	log        zerolog.Logger
}

// New returns a Source with no API key.
func New(log zerolog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		customIDs:  make(map[string]string),
		log:        log.With().Str("source", "coincap").Logger(),
	}
}

// WithAPIKey attaches an optional API key for higher rate limits.
func (s *Source) WithAPIKey(key string) *Source {
	s.apiKey = key
	return s
}

// WithMapping registers a custom symbol -> CoinCap id override.
func (s *Source) WithMapping(symbol, coincapID string) *Source {
	s.customIDs[strings.ToUpper(symbol)] = coincapID
	return s
}

// Name implements domain.CryptoPriceSource.
func (s *Source) Name() string { return "coincap" }

func (s *Source) assetID(symbol string) (string, bool) {
	symbol = strings.ToUpper(symbol)
	if id, ok := s.customIDs[symbol]; ok {
		return id, true
	}
	id, ok := symbolToID[symbol]
	return id, ok
}

func (s *Source) authHeader(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

type historyResponse struct {
	Data []struct {
		PriceUSD string `json:"priceUsd"`
		Time     int64  `json:"time"`
	} `json:"data"`
}

// FetchClose implements domain.CryptoPriceSource.
func (s *Source) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	if a.Kind != asset.KindCrypto {
		return nil, nil
	}
	coinID, ok := s.assetID(a.Symbol)
	if !ok {
		return nil, nil
	}
	start := date.UnixMilli()
	end := date.Add(24 * time.Hour).UnixMilli()
	url := fmt.Sprintf("%s/assets/%s/history?interval=d1&start=%d&end=%d", s.baseURL, coinID, start, end)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("coincap: build request: %w", err)
	}
	s.authHeader(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coincap: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("coincap: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("coincap: decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, nil
	}
	price, err := money.Parse(parsed.Data[0].PriceUSD)
	if err != nil {
		return nil, fmt.Errorf("coincap: parse close price: %w", err)
	}
	return &domain.PricePoint{
		AssetID:       id,
		AsOfDate:      date,
		Timestamp:     time.Now(),
		Price:         price,
		QuoteCurrency: "USD",
		Kind:          domain.PriceClose,
		Source:        s.Name(),
	}, nil
}

type assetResponse struct {
	Data struct {
		PriceUSD string `json:"priceUsd"`
	} `json:"data"`
}

// FetchQuote implements domain.CryptoPriceSource.
func (s *Source) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	if a.Kind != asset.KindCrypto {
		return nil, false, nil
	}
	coinID, ok := s.assetID(a.Symbol)
	if !ok {
		return nil, false, nil
	}
	url := fmt.Sprintf("%s/assets/%s", s.baseURL, coinID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("coincap: build request: %w", err)
	}
	s.authHeader(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("coincap: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("coincap: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed assetResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("coincap: decode response: %w", err)
	}
	if parsed.Data.PriceUSD == "" {
		return nil, false, nil
	}
	price, err := money.Parse(parsed.Data.PriceUSD)
	if err != nil {
		return nil, false, fmt.Errorf("coincap: parse quote price: %w", err)
	}
	now := time.Now()
	return &domain.PricePoint{
		AssetID:       id,
		AsOfDate:      now,
		Timestamp:     now,
		Price:         price,
		QuoteCurrency: "USD",
		Kind:          domain.PriceQuote,
		Source:        s.Name(),
	}, true, nil
}

var _ domain.CryptoPriceSource = (*Source)(nil)
