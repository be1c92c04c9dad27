// Package eodhd implements an equity price source backed by EODHD's
// end-of-day API. Symbols are "TICKER.EXCHANGE", e.g. "AAPL.US",
// "VOD.LSE".
package eodhd

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

const defaultBaseURL = "https://eodhd.com/api/eod"

// Source is an EODHD-backed domain.EquityPriceSource.
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
		log:        log.With().Str("source", "eodhd").Logger(),
	}
}

// Name implements domain.EquityPriceSource.
func (s *Source) Name() string { return "eodhd" }

type eodResponse struct {
	Date  string   `json:"date"`
	Close *float64 `json:"close"`
}

// mapExchange translates an internal exchange code (MIC or common name)
// to EODHD's exchange suffix. Unknown exchanges default to "US".
func mapExchange(exchange string) string {
	switch strings.ToUpper(exchange) {
	case "XNYS", "NYSE", "XNAS", "NASDAQ", "XASE", "AMEX", "ARCX", "ARCA", "BATS", "US", "":
		return "US"
	case "XLON", "LSE", "LONDON":
		return "LSE"
	case "XETR", "XETRA":
		return "XETRA"
	case "XFRA", "FRA", "FRANKFURT":
		return "F"
	case "XPAR", "PARIS":
		return "PA"
	case "XAMS", "AMSTERDAM":
		return "AS"
	case "XSWX", "SIX", "SWISS":
		return "SW"
	case "XTKS", "TSE", "TOKYO":
		return "TSE"
	case "XHKG", "HKEX", "HONG KONG":
		return "HK"
	case "XASX", "ASX", "AUSTRALIA":
		return "AU"
	case "XTSE", "TSX", "TORONTO":
		return "TO"
	case "XTSX", "TSXV":
		return "V"
	case "XSES", "SGX", "SINGAPORE":
		return "SG"
	case "XBOM", "BSE", "BOMBAY":
		return "BSE"
	case "XNSE", "NSE":
		return "NSE"
	default:
		return "US"
	}
}

// quoteCurrencyForExchange infers the listing currency from the
// exchange. EODHD doesn't echo the currency back, so this mirrors the
// exchange-suffix table above.
func quoteCurrencyForExchange(exchange string) string {
	switch strings.ToUpper(exchange) {
	case "XLON", "LSE", "LONDON":
		return "GBP"
	case "XETR", "XETRA", "XFRA", "FRA", "FRANKFURT", "XPAR", "PARIS", "XAMS", "AMSTERDAM":
		return "EUR"
	case "XSWX", "SIX", "SWISS":
		return "CHF"
	case "XTKS", "TSE", "TOKYO":
		return "JPY"
	case "XHKG", "HKEX", "HONG KONG":
		return "HKD"
	case "XASX", "ASX", "AUSTRALIA":
		return "AUD"
	case "XTSE", "TSX", "TORONTO", "XTSX", "TSXV":
		return "CAD"
	case "XSES", "SGX", "SINGAPORE":
		return "SGD"
	case "XBOM", "BSE", "BOMBAY", "XNSE", "NSE":
		return "INR"
	default:
		return "USD"
	}
}

func buildSymbol(ticker, exchange string) string {
	return fmt.Sprintf("%s.%s", strings.ToUpper(ticker), mapExchange(exchange))
}

// FetchClose implements domain.EquityPriceSource.
func (s *Source) FetchClose(ctx context.Context, a asset.Asset, id asset.ID, date time.Time) (*domain.PricePoint, error) {
	if a.Kind != asset.KindEquity {
		return nil, nil
	}
	symbol := buildSymbol(a.Ticker, a.Exchange)
	dateStr := date.Format("2006-01-02")
	url := fmt.Sprintf("%s/%s?api_token=%s&from=%s&to=%s&fmt=json", s.baseURL, symbol, s.apiKey, dateStr, dateStr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("eodhd: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eodhd: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("eodhd: status %d: %s", resp.StatusCode, string(body))
	}

	var entries []eodResponse
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("eodhd: decode response: %w", err)
	}

	for _, e := range entries {
		if e.Date != dateStr || e.Close == nil {
			continue
		}
		price, err := money.Parse(strconv.FormatFloat(*e.Close, 'f', -1, 64))
		if err != nil {
			return nil, fmt.Errorf("eodhd: parse close price: %w", err)
		}
		return &domain.PricePoint{
			AssetID:       id,
			AsOfDate:      date,
			Timestamp:     time.Now(),
			Price:         price,
			QuoteCurrency: quoteCurrencyForExchange(a.Exchange),
			Kind:          domain.PriceClose,
			Source:        s.Name(),
		}, nil
	}
	return nil, nil
}

// FetchQuote implements domain.EquityPriceSource. EODHD's free tier has
// no live-quote endpoint distinct from the EOD series, so this source
// never serves live quotes.
func (s *Source) FetchQuote(ctx context.Context, a asset.Asset, id asset.ID) (*domain.PricePoint, bool, error) {
	return nil, false, nil
}

var _ domain.EquityPriceSource = (*Source)(nil)
