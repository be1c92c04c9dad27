// Package marketstack implements an equity price source backed by
// Marketstack's end-of-day API.
package marketstack

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

const defaultBaseURL = "https://api.marketstack.com/v1/eod"

// Source is a Marketstack-backed domain.EquityPriceSource.
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
		log:        log.With().Str("source", "marketstack").Logger(),
	}
}

// Name implements domain.EquityPriceSource.
func (s *Source) Name() string { return "marketstack" }

// mapExchange translates an internal exchange code to the MIC suffix
// Marketstack expects after the dot, e.g. "AAPL.XNAS". Unknown
// exchanges are passed through upper-cased and used as the suffix
// as-is; buildSymbol leaves the ticker unsuffixed only when the
// exchange is empty.
func mapExchange(exchange string) string {
	switch strings.ToUpper(exchange) {
	case "NASDAQ":
		return "XNAS"
	case "NYSE":
		return "XNYS"
	case "LSE", "LONDON":
		return "XLON"
	case "TSX", "TORONTO":
		return "XTSE"
	default:
		return strings.ToUpper(exchange)
	}
}

func buildSymbol(ticker, exchange string) string {
	if exchange == "" {
		return strings.ToUpper(ticker)
	}
	return fmt.Sprintf("%s.%s", strings.ToUpper(ticker), mapExchange(exchange))
}

type eodEntry struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

type eodResponse struct {
	Data []eodEntry `json:"data"`
}

// FetchClose implements domain.EquityPriceSource.
func (s *Source) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	if a.Kind != asset.KindEquity {
		return nil, nil
	}
	symbol := buildSymbol(a.Ticker, a.Exchange)
	dateStr := date.Format("2006-01-02")
	url := fmt.Sprintf("%s?access_key=%s&symbols=%s&date_from=%s&date_to=%s", s.baseURL, s.apiKey, symbol, dateStr, dateStr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("marketstack: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketstack: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("marketstack: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed eodResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("marketstack: decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, nil
	}

	price, err := money.Parse(strconv.FormatFloat(parsed.Data[0].Close, 'f', -1, 64))
	if err != nil {
		return nil, fmt.Errorf("marketstack: parse close price: %w", err)
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

// FetchQuote implements domain.EquityPriceSource. Marketstack's free
// tier only serves end-of-day data; no live-quote endpoint is wired.
func (s *Source) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	return nil, false, nil
}

var _ domain.EquityPriceSource = (*Source)(nil)
