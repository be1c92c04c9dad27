// Package twelvedata implements an equity price source backed by
// Twelve Data's time-series and live-price endpoints.
package twelvedata

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

const defaultBaseURL = "https://api.twelvedata.com"

// Source is a Twelve Data-backed domain.EquityPriceSource.
type Source struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// New returns a Source authenticated with apiKey.
func New(apiKey string, log zerolog.Logger) *Source {
	return &Source{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("source", "twelve_data").Logger(),
	}
}

// Name implements domain.EquityPriceSource.
func (s *Source) Name() string { return "twelve_data" }

func symbolFor(a asset.Asset) string {
	if a.Exchange == "" {
		return strings.ToUpper(a.Ticker)
	}
	return fmt.Sprintf("%s:%s", strings.ToUpper(a.Ticker), strings.ToUpper(a.Exchange))
}

type timeSeriesResponse struct {
	Values []struct {
		Datetime string `json:"datetime"`
		Close    string `json:"close"`
	} `json:"values"`
	Status string `json:"status"`
}

// FetchClose implements domain.EquityPriceSource.
func (s *Source) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	if a.Kind != asset.KindEquity {
		return nil, nil
	}
	symbol := symbolFor(a)
	dateStr := date.Format("2006-01-02")
	url := fmt.Sprintf("%s/time_series?symbol=%s&interval=1day&start_date=%s&end_date=%s&apikey=%s",
		s.baseURL, symbol, dateStr, dateStr, s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("twelve_data: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twelve_data: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twelve_data: status %d: %s", resp.StatusCode, string(body))
	}

	var ts timeSeriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&ts); err != nil {
		return nil, fmt.Errorf("twelve_data: decode response: %w", err)
	}
	if ts.Status == "error" || len(ts.Values) == 0 {
		return nil, nil
	}

	price, err := money.Parse(ts.Values[0].Close)
	if err != nil {
		return nil, fmt.Errorf("twelve_data: parse close price: %w", err)
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

type priceResponse struct {
	Price  string `json:"price"`
	Status string `json:"status"`
}

// FetchQuote implements domain.EquityPriceSource.
func (s *Source) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	if a.Kind != asset.KindEquity {
		return nil, false, nil
	}
	symbol := symbolFor(a)
	url := fmt.Sprintf("%s/price?symbol=%s&apikey=%s", s.baseURL, symbol, s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("twelve_data: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("twelve_data: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("twelve_data: status %d: %s", resp.StatusCode, string(body))
	}

	var pr priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, false, fmt.Errorf("twelve_data: decode response: %w", err)
	}
	if pr.Status == "error" || pr.Price == "" {
		return nil, false, nil
	}
	price, err := money.Parse(pr.Price)
	if err != nil {
		return nil, false, fmt.Errorf("twelve_data: parse quote price: %w", err)
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

var _ domain.EquityPriceSource = (*Source)(nil)
