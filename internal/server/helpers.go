package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/keepbook/internal/changepoint"
	"github.com/aristath/keepbook/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a domain sentinel error to its HTTP status and
// writes a JSON error body; any other error is treated as internal.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNoClosePrice),
		errors.Is(err, domain.ErrNoFxRate):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPeriod),
		errors.Is(err, domain.ErrInvalidGranularity),
		errors.Is(err, domain.ErrInvalidScope):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func parseDateParam(v string, fallback time.Time) (time.Time, error) {
	if v == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", v, domain.ErrInvalidPeriod)
	}
	return t, nil
}

func parseBoolParam(v string, fallback bool) bool {
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseInt32PtrParam(v string) (*int32, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q: %w", v, domain.ErrInvalidPeriod)
	}
	decimals := int32(n)
	return &decimals, nil
}

func parseIntPtrParam(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q: %w", v, domain.ErrInvalidPeriod)
	}
	return &n, nil
}

// parseGranularity parses the HTTP query spelling of a changepoint
// granularity (full|hourly|daily|weekly|monthly|yearly|custom). An
// empty string defaults to Daily, matching the common case of one
// history point per calendar day.
func parseGranularity(v string) (changepoint.Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return changepoint.Daily, nil
	case "full":
		return changepoint.Full, nil
	case "hourly":
		return changepoint.Hourly, nil
	case "daily":
		return changepoint.Daily, nil
	case "weekly":
		return changepoint.Weekly, nil
	case "monthly":
		return changepoint.Monthly, nil
	case "yearly":
		return changepoint.Yearly, nil
	case "custom":
		return changepoint.Custom, nil
	default:
		return 0, fmt.Errorf("invalid granularity %q (use: full, hourly, daily, weekly, monthly, yearly, custom): %w", v, domain.ErrInvalidGranularity)
	}
}

// parseStrategy parses the HTTP query spelling of a changepoint bucket
// strategy (last|first). An empty string defaults to Last.
func parseStrategy(v string) (changepoint.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "last":
		return changepoint.Last, nil
	case "first":
		return changepoint.First, nil
	default:
		return 0, fmt.Errorf("invalid strategy %q (use: last, first): %w", v, domain.ErrInvalidGranularity)
	}
}
