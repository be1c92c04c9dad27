// Package alphavantage implements an equity price source backed by
// Alpha Vantage's TIME_SERIES_DAILY endpoint.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/money"
)

const defaultBaseURL = "https://www.alphavantage.co/query"

// Source is an Alpha Vantage-backed domain.EquityPriceSource.
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
		log:        log.With().Str("source", "alpha_vantage").Logger(),
	}
}

// Name implements domain.EquityPriceSource.
func (s *Source) Name() string { return "alpha_vantage" }

type dailySeriesResponse struct {
	TimeSeries map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (Daily)"`
	Note       string `json:"Note"`
	ErrorMsg   string `json:"Error Message"`
	Info       string `json:"Information"`
}

// FetchClose implements domain.EquityPriceSource.
func (s *Source) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	if a.Kind != asset.KindEquity {
		return nil, nil
	}
	symbol := strings.ToUpper(a.Ticker)
	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", symbol)
	q.Set("outputsize", "full")
	q.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("alpha_vantage: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alpha_vantage: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("alpha_vantage: status %d: %s", resp.StatusCode, string(body))
	}

	var series dailySeriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return nil, fmt.Errorf("alpha_vantage: decode response: %w", err)
	}
	if series.ErrorMsg != "" || series.Note != "" || series.Info != "" {
		return nil, fmt.Errorf("alpha_vantage: %s", firstNonEmpty(series.ErrorMsg, series.Note, series.Info))
	}

	dateStr := date.Format("2006-01-02")
	entry, ok := series.TimeSeries[dateStr]
	if !ok {
		return nil, nil
	}
	price, err := money.Parse(entry.Close)
	if err != nil {
		return nil, fmt.Errorf("alpha_vantage: parse close price: %w", err)
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

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "unknown error"
}

// FetchQuote implements domain.EquityPriceSource. Alpha Vantage's
// GLOBAL_QUOTE endpoint shares the same free-tier rate limit as the
// daily series, so this source never serves live quotes; when no
// source returns a quote, marketdata.Service.PriceLatest falls back to
// the close-price path instead.
func (s *Source) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	return nil, false, nil
}

var _ domain.EquityPriceSource = (*Source)(nil)
