package server

import (
	"net/http"
	"time"

	"github.com/aristath/keepbook/internal/spending"
	"github.com/aristath/keepbook/internal/utils"
)

// handleSpendingReport serves GET /api/spending, bucketing qualifying
// transactions into a reporting-currency spending report.
func (s *Server) handleSpendingReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var bucket *time.Duration
	if v := q.Get("bucket_days"); v != "" {
		if days, err := parseIntPtrParam(v); err == nil && days != nil {
			d := time.Duration(*days) * 24 * time.Hour
			bucket = &d
		}
	}

	top, err := parseIntPtrParam(q.Get("top"))
	if err != nil {
		writeError(w, err)
		return
	}
	decimals, err := parseInt32PtrParam(q.Get("currency_decimals"))
	if err != nil {
		writeError(w, err)
		return
	}
	lookbackDays := 0
	if v := q.Get("lookback_days"); v != "" {
		if n, parseErr := parseIntPtrParam(v); parseErr == nil && n != nil {
			lookbackDays = *n
		}
	}

	report, err := s.spending.Run(r.Context(), spending.Options{
		Currency:   q.Get("currency"),
		Start:      q.Get("start"),
		End:        q.Get("end"),
		Period:     q.Get("period"),
		TZ:         q.Get("tz"),
		WeekStart:  q.Get("week_start"),
		Bucket:     bucket,
		Account:    q.Get("account"),
		Connection: q.Get("connection"),
		Ignore: spending.IgnoreRules{
			Accounts:    utils.ParseCSV(q.Get("ignore_accounts")),
			Connections: utils.ParseCSV(q.Get("ignore_connections")),
			Tags:        utils.ParseCSV(q.Get("ignore_tags")),
		},
		Status:             q.Get("status"),
		Direction:          q.Get("direction"),
		GroupBy:            q.Get("group_by"),
		Top:                top,
		LookbackDays:       lookbackDays,
		IncludeNonCurrency: parseBoolParam(q.Get("include_non_currency"), false),
		IncludeEmpty:       parseBoolParam(q.Get("include_empty"), false),
		CurrencyDecimals:   decimals,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
