package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/portfolio"
)

func parseGrouping(v string) (portfolio.Grouping, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "both":
		return portfolio.GroupingBoth, nil
	case "asset":
		return portfolio.GroupingAsset, nil
	case "account":
		return portfolio.GroupingAccount, nil
	default:
		return 0, fmt.Errorf("invalid grouping %q (use: asset, account, both): %w", v, domain.ErrInvalidPeriod)
	}
}

// handlePortfolioSnapshot serves GET /api/portfolio, valuing every
// held asset as of an optional as_of date (defaulting to today).
func (s *Server) handlePortfolioSnapshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	asOf, err := parseDateParam(q.Get("as_of"), time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		writeError(w, err)
		return
	}
	grouping, err := parseGrouping(q.Get("grouping"))
	if err != nil {
		writeError(w, err)
		return
	}
	decimals, err := parseInt32PtrParam(q.Get("currency_decimals"))
	if err != nil {
		writeError(w, err)
		return
	}

	snapshot, err := s.portfolio.Calculate(r.Context(), portfolio.Query{
		AsOfDate:         asOf,
		Currency:         q.Get("currency"),
		CurrencyDecimals: decimals,
		Grouping:         grouping,
		IncludeDetail:    parseBoolParam(q.Get("include_detail"), false),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// handlePortfolioHistory serves GET /api/portfolio/history, replaying
// change points over the local market-data cache between start
// (required) and end (defaulting to today).
func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseDateParam(q.Get("start"), time.Time{})
	if err != nil {
		writeError(w, err)
		return
	}
	if start.IsZero() {
		writeError(w, fmt.Errorf("start is required: %w", domain.ErrInvalidPeriod))
		return
	}
	end, err := parseDateParam(q.Get("end"), time.Now().UTC().Truncate(24*time.Hour))
	if err != nil {
		writeError(w, err)
		return
	}
	granularity, err := parseGranularity(q.Get("granularity"))
	if err != nil {
		writeError(w, err)
		return
	}
	strategy, err := parseStrategy(q.Get("strategy"))
	if err != nil {
		writeError(w, err)
		return
	}
	decimals, err := parseInt32PtrParam(q.Get("currency_decimals"))
	if err != nil {
		writeError(w, err)
		return
	}

	var customBucket time.Duration
	if v := q.Get("custom_bucket_days"); v != "" {
		days, convErr := strconv.Atoi(v)
		if convErr != nil || days <= 0 {
			writeError(w, fmt.Errorf("invalid custom_bucket_days %q: %w", v, domain.ErrInvalidGranularity))
			return
		}
		customBucket = time.Duration(days) * 24 * time.Hour
	}

	history, err := s.portfolio.History(r.Context(), portfolio.HistoryOptions{
		Start:            start,
		End:              end,
		IncludePrices:    parseBoolParam(q.Get("include_prices"), false),
		Granularity:      granularity,
		Strategy:         strategy,
		CustomBucket:     customBucket,
		Currency:         q.Get("currency"),
		CurrencyDecimals: decimals,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
