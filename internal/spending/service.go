package spending

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/marketdata"
	"github.com/aristath/keepbook/internal/money"
)

// Service runs spending reports over an AccountProvider's transactions,
// valuing each in a reporting currency via store-only market data.
type Service struct {
	accounts domain.AccountProvider
	market   *marketdata.Service
	clock    domain.Clock
	log      zerolog.Logger
}

// New returns a Service. market should have been built with no routers
// configured (or its store-only accessors used exclusively, as this
// package does) so a report never makes a network call.
func New(accounts domain.AccountProvider, market *marketdata.Service, log zerolog.Logger) *Service {
	return &Service{
		accounts: accounts,
		market:   market,
		clock:    domain.SystemClock{},
		log:      log.With().Str("component", "spending_service").Logger(),
	}
}

// WithClock overrides the wall clock, for deterministic tests.
func (s *Service) WithClock(clock domain.Clock) *Service { s.clock = clock; return s }

// Run produces a Report for opts.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		return nil, fmt.Errorf("spending: currency is required")
	}

	tz, err := parseTZSpec(opts.TZ)
	if err != nil {
		return nil, err
	}
	period, customDays, err := ParsePeriod(opts.Period, opts.Bucket)
	if err != nil {
		return nil, err
	}
	direction, err := ParseDirection(opts.Direction)
	if err != nil {
		return nil, err
	}
	statusFilter, err := ParseStatusFilter(opts.Status)
	if err != nil {
		return nil, err
	}
	groupBy, err := ParseGroupBy(opts.GroupBy)
	if err != nil {
		return nil, err
	}
	weekStart, err := ParseWeekStart(opts.WeekStart)
	if err != nil {
		return nil, err
	}

	if opts.Account != "" && opts.Connection != "" {
		return nil, fmt.Errorf("spending: account and connection scope are mutually exclusive: %w", domain.ErrInvalidScope)
	}

	scope, accountIDs, err := s.resolveScope(ctx, opts)
	if err != nil {
		return nil, err
	}

	startOpt, hasStart, err := parseDateOpt("start", opts.Start)
	if err != nil {
		return nil, err
	}
	endOpt, hasEnd, err := parseDateOpt("end", opts.End)
	if err != nil {
		return nil, err
	}

	txRows, minDate, err := s.loadRows(ctx, accountIDs, tz, statusFilter, opts.IncludeNonCurrency)
	if err != nil {
		return nil, err
	}

	today := tz.today(s.clock)
	startDate := today
	if hasStart {
		startDate = startOpt
	} else if minDate != nil {
		startDate = *minDate
	}
	endDate := today
	if hasEnd {
		endDate = endOpt
	}
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("spending: end date %s is before start date %s", formatYMD(endDate), formatYMD(startDate))
	}

	buckets := map[time.Time]*bucketAgg{}
	var skipped, missingPriceCount, missingFxCount, includedTx int
	grandTotal := decimal.Zero

	for _, r := range txRows {
		if r.localDate.Before(startDate) || r.localDate.After(endDate) {
			continue
		}
		if r.amount.IsZero() {
			continue
		}
		switch direction {
		case DirectionOutflow:
			if !r.amount.IsNegative() {
				continue
			}
		case DirectionInflow:
			if !r.amount.IsPositive() {
				continue
			}
		}

		valueStr, missing, err := valueInReportingCurrency(ctx, s.market, r.asset, r.amount, currency, r.localDate, opts.CurrencyDecimals)
		if err != nil {
			return nil, err
		}
		if valueStr == nil {
			skipped++
			switch missing {
			case missingPrice:
				missingPriceCount++
			case missingFx:
				missingFxCount++
			}
			continue
		}

		valueDec, err := money.Parse(*valueStr)
		if err != nil {
			return nil, fmt.Errorf("spending: internal error: formatted decimal did not parse: %s: %w", *valueStr, err)
		}
		directed := applyDirection(valueDec, direction)
		if directed.IsZero() {
			continue
		}

		includedTx++
		grandTotal = grandTotal.Add(directed)

		bstart := bucketStartFor(r.localDate, period, weekStart, customDays, startDate)
		agg := buckets[bstart]
		if agg == nil {
			agg = &bucketAgg{breakdown: map[string]*breakdownAcc{}}
			buckets[bstart] = agg
		}
		agg.total = agg.total.Add(directed)
		agg.txCount++

		if groupBy != GroupByNone {
			for _, key := range groupKeys(groupBy, r) {
				entry := agg.breakdown[key]
				if entry == nil {
					entry = &breakdownAcc{}
					agg.breakdown[key] = entry
				}
				entry.total = entry.total.Add(directed)
				entry.count++
			}
		}
	}

	var starts []time.Time
	if opts.IncludeEmpty {
		seen := map[time.Time]bool{}
		if period == PeriodRange {
			starts = append(starts, bucketStartFor(startDate, period, weekStart, customDays, startDate))
		} else {
			st := bucketStartFor(startDate, period, weekStart, customDays, startDate)
			for !st.After(endDate) {
				if !seen[st] {
					starts = append(starts, st)
					seen[st] = true
				}
				st = nextBucketStart(st, period, customDays)
			}
		}
	} else {
		for k := range buckets {
			starts = append(starts, k)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	}

	periods := make([]PeriodResult, 0, len(starts))
	for _, bstart := range starts {
		bend := bucketEndFor(bstart, period, customDays, endDate)
		clampedStart := clampDate(bstart, startDate, endDate)
		clampedEnd := clampDate(bend, startDate, endDate)
		agg := buckets[bstart]

		total := decimal.Zero
		txCount := 0
		var breakdown []BreakdownEntry
		if agg != nil {
			total = agg.total
			txCount = agg.txCount
			if groupBy != GroupByNone {
				breakdown = renderBreakdown(agg.breakdown, opts.Top, opts.CurrencyDecimals)
			}
		}

		periods = append(periods, PeriodResult{
			StartDate:        clampedStart,
			EndDate:          clampedEnd,
			Total:            money.FormatBaseCurrencyValue(total, opts.CurrencyDecimals),
			TransactionCount: txCount,
			Breakdown:        breakdown,
		})
	}

	report := &Report{
		Scope:                        scope,
		Currency:                     currency,
		TZ:                           tz.label,
		StartDate:                    startDate,
		EndDate:                      endDate,
		Period:                       period.label(),
		Direction:                    direction.label(),
		Status:                       statusFilter.label(),
		GroupBy:                      groupBy.label(),
		Total:                        money.FormatBaseCurrencyValue(grandTotal, opts.CurrencyDecimals),
		TransactionCount:             includedTx,
		Periods:                      periods,
		SkippedTransactionCount:      skipped,
		MissingPriceTransactionCount: missingPriceCount,
		MissingFxTransactionCount:    missingFxCount,
	}
	if period == PeriodWeekly {
		label := weekStart.label()
		report.WeekStart = &label
	}
	if period == PeriodCustom {
		report.BucketDays = &customDays
	}

	s.log.Debug().
		Int("rows", len(txRows)).
		Int("included", includedTx).
		Int("skipped", skipped).
		Msg("computed spending report")

	return report, nil
}

type bucketAgg struct {
	total     decimal.Decimal
	txCount   int
	breakdown map[string]*breakdownAcc
}

type breakdownAcc struct {
	total decimal.Decimal
	count int
}

func renderBreakdown(breakdown map[string]*breakdownAcc, top *int, decimals *int32) []BreakdownEntry {
	type kv struct {
		key   string
		total decimal.Decimal
		count int
	}
	entries := make([]kv, 0, len(breakdown))
	for k, v := range breakdown {
		entries = append(entries, kv{k, v.total, v.count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].total.Equal(entries[j].total) {
			return entries[i].total.GreaterThan(entries[j].total)
		}
		return entries[i].key < entries[j].key
	})
	if top != nil && *top < len(entries) {
		entries = entries[:*top]
	}
	out := make([]BreakdownEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, BreakdownEntry{
			Key:              e.key,
			Total:            money.FormatBaseCurrencyValue(e.total, decimals),
			TransactionCount: e.count,
		})
	}
	return out
}

func applyDirection(value decimal.Decimal, direction Direction) decimal.Decimal {
	switch direction {
	case DirectionOutflow:
		if value.IsNegative() {
			return value.Neg()
		}
		return decimal.Zero
	case DirectionInflow:
		if value.IsPositive() {
			return value
		}
		return decimal.Zero
	default:
		return value
	}
}

func groupKeys(groupBy GroupBy, r row) []string {
	switch groupBy {
	case GroupByCategory:
		if r.annotation != nil && r.annotation.Category != nil && *r.annotation.Category != "" {
			return []string{*r.annotation.Category}
		}
		return []string{"uncategorized"}
	case GroupByMerchant:
		if r.annotation != nil && r.annotation.Description != nil && *r.annotation.Description != "" {
			return []string{*r.annotation.Description}
		}
		return []string{r.rawDescription}
	case GroupByAccount:
		return []string{r.accountID}
	case GroupByTag:
		if r.annotation != nil && len(r.annotation.Tags) > 0 {
			return r.annotation.Tags
		}
		return []string{"untagged"}
	default:
		return nil
	}
}
