// Package cryptocompare implements a crypto price source backed by
// CryptoCompare's historical-daily and price endpoints. An API key is
// optional (raises rate limits but is not required).
package cryptocompare

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

const defaultBaseURL = "https://min-api.cryptocompare.com/data"

// Source is a CryptoCompare-backed domain.CryptoPriceSource.
type Source struct {
	apiKey        string // optional
	httpClient    *http.Client
	baseURL       string
	quoteCurrency string
	log           zerolog.Logger
}

// New returns a Source with no API key, quoting in USD.
func New(log zerolog.Logger) *Source {
	return &Source{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       defaultBaseURL,
		quoteCurrency: "USD",
		log:           log.With().Str("source", "cryptocompare").Logger(),
	}
}

// WithAPIKey attaches an optional API key for higher rate limits.
func (s *Source) WithAPIKey(key string) *Source {
	s.apiKey = key
	return s
}

// Name implements domain.CryptoPriceSource.
func (s *Source) Name() string { return "cryptocompare" }

func (s *Source) authHeader(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+s.apiKey)
	}
}

type histoDayResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time  int64   `json:"time"`
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

// FetchClose implements domain.CryptoPriceSource.
func (s *Source) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	if a.Kind != asset.KindCrypto {
		return nil, nil
	}
	symbol := strings.ToUpper(a.Symbol)
	toTS := date.Add(24 * time.Hour).Unix()
	url := fmt.Sprintf("%s/v2/histoday?fsym=%s&tsym=%s&limit=1&toTs=%d", s.baseURL, symbol, s.quoteCurrency, toTS)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: build request: %w", err)
	}
	s.authHeader(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cryptocompare: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed histoDayResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("cryptocompare: decode response: %w", err)
	}
	if parsed.Response == "Error" {
		return nil, fmt.Errorf("cryptocompare: %s", parsed.Message)
	}
	entries := parsed.Data.Data
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	if last.Close == 0 {
		return nil, nil
	}
	price, err := money.Parse(strconv.FormatFloat(last.Close, 'f', -1, 64))
	if err != nil {
		return nil, fmt.Errorf("cryptocompare: parse close price: %w", err)
	}
	return &domain.PricePoint{
		AssetID:       id,
		AsOfDate:      date,
		Timestamp:     time.Now(),
		Price:         price,
		QuoteCurrency: s.quoteCurrency,
		Kind:          domain.PriceClose,
		Source:        s.Name(),
	}, nil
}

type priceResponse map[string]float64

// FetchQuote implements domain.CryptoPriceSource.
func (s *Source) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	if a.Kind != asset.KindCrypto {
		return nil, false, nil
	}
	symbol := strings.ToUpper(a.Symbol)
	url := fmt.Sprintf("%s/price?fsym=%s&tsyms=%s", s.baseURL, symbol, s.quoteCurrency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("cryptocompare: build request: %w", err)
	}
	s.authHeader(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("cryptocompare: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("cryptocompare: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("cryptocompare: decode response: %w", err)
	}
	raw, ok := parsed[s.quoteCurrency]
	if !ok {
		return nil, false, nil
	}
	price, err := money.Parse(strconv.FormatFloat(raw, 'f', -1, 64))
	if err != nil {
		return nil, false, fmt.Errorf("cryptocompare: parse quote price: %w", err)
	}
	now := time.Now()
	return &domain.PricePoint{
		AssetID:       id,
		AsOfDate:      now,
		Timestamp:     now,
		Price:         price,
		QuoteCurrency: s.quoteCurrency,
		Kind:          domain.PriceQuote,
		Source:        s.Name(),
	}, true, nil
}

var _ domain.CryptoPriceSource = (*Source)(nil)
