// Package frankfurter implements an FX rate source backed by the
// Frankfurter API, which republishes ECB daily reference rates with
// EUR as base. No credentials are required. Cross-rates for non-EUR
// pairs are computed locally through EUR.
package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/money"
)

const defaultBaseURL = "https://api.frankfurter.app"

// Source is a Frankfurter-backed domain.FxRateSource.
type Source struct {
	httpClient *http.Client
	baseURL    string
	log        zerolog.Logger
}

// New returns a Source with a default HTTP client.
func New(log zerolog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		log:        log.With().Str("source", "frankfurter").Logger(),
	}
}

// Name implements domain.FxRateSource.
func (s *Source) Name() string { return "frankfurter" }

type ratesResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (s *Source) fetchEURRates(ctx context.Context, date time.Time, symbols []string) (map[string]float64, error) {
	url := fmt.Sprintf("%s/%s?from=EUR&to=%s", s.baseURL, date.Format("2006-01-02"), strings.Join(symbols, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("frankfurter: build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("frankfurter: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("frankfurter: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("frankfurter: decode response: %w", err)
	}
	return parsed.Rates, nil
}

// FetchClose implements domain.FxRateSource. base == quote returns a
// synthetic rate of 1 without any request; a EUR leg is fetched
// directly; any other pair is computed as a cross-rate through EUR.
func (s *Source) FetchClose(ctx context.Context, base, quote string, date time.Time) (*domain.FxRatePoint, error) {
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)

	if base == quote {
		return &domain.FxRatePoint{
			Base: base, Quote: quote, AsOfDate: date, Timestamp: time.Now(),
			Rate: money.One, Kind: domain.FxClose, Source: s.Name(),
		}, nil
	}

	var rate decimal.Decimal
	switch {
	case base == "EUR":
		rates, err := s.fetchEURRates(ctx, date, []string{quote})
		if err != nil {
			return nil, err
		}
		v, ok := rates[quote]
		if !ok {
			return nil, nil
		}
		rate, err = money.Parse(fmt.Sprintf("%v", v))
		if err != nil {
			return nil, fmt.Errorf("frankfurter: parse rate: %w", err)
		}
	case quote == "EUR":
		rates, err := s.fetchEURRates(ctx, date, []string{base})
		if err != nil {
			return nil, err
		}
		eurToBase, ok := rates[base]
		if !ok || eurToBase == 0 {
			return nil, nil
		}
		rate = money.One.Div(decimal.NewFromFloat(eurToBase))
	default:
		rates, err := s.fetchEURRates(ctx, date, []string{base, quote})
		if err != nil {
			return nil, err
		}
		eurToBase, okBase := rates[base]
		eurToQuote, okQuote := rates[quote]
		if !okBase || !okQuote || eurToBase == 0 {
			return nil, nil
		}
		rate = decimal.NewFromFloat(eurToQuote).Div(decimal.NewFromFloat(eurToBase))
	}

	return &domain.FxRatePoint{
		Base: base, Quote: quote, AsOfDate: date, Timestamp: time.Now(),
		Rate: rate, Kind: domain.FxClose, Source: s.Name(),
	}, nil
}

var _ domain.FxRateSource = (*Source)(nil)
