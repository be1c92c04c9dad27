package spending

import (
	"fmt"
	"strings"
	"time"

	// Embeds the IANA database so named-zone lookups work even on a
	// minimal container image with no system zoneinfo.
	_ "time/tzdata"

	"github.com/aristath/keepbook/internal/domain"
)

// tzSpec resolves transaction timestamps (instants) to calendar dates
// in a reporting timezone.
type tzSpec struct {
	loc   *time.Location
	label string
}

// parseTZSpec parses an IANA zone name, "utc", or "local"/"" (the
// process's local zone, the default).
func parseTZSpec(s string) (tzSpec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.EqualFold(trimmed, "local") || strings.EqualFold(trimmed, "current") {
		return tzSpec{loc: time.Local, label: "local"}, nil
	}
	if strings.EqualFold(trimmed, "utc") {
		return tzSpec{loc: time.UTC, label: "UTC"}, nil
	}
	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return tzSpec{}, fmt.Errorf("spending: invalid timezone %q (expected IANA name, e.g. America/New_York): %w", trimmed, err)
	}
	return tzSpec{loc: loc, label: trimmed}, nil
}

// dateIn returns the calendar date of ts in the zone, represented as a
// UTC midnight time.Time (the day-precision convention used throughout
// this module).
func (z tzSpec) dateIn(ts time.Time) time.Time {
	return dateOnly(ts.In(z.loc))
}

func (z tzSpec) today(clock domain.Clock) time.Time {
	return dateOnly(clock.Now().In(z.loc))
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDateOpt(label, s string) (time.Time, bool, error) {
	if s == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("spending: invalid %s date %q: %w", label, s, err)
	}
	return t, true, nil
}

func formatYMD(t time.Time) string { return t.Format("2006-01-02") }

func lastDayOfMonth(year int, month time.Month) time.Time {
	nextYear, nextMonth := year, month+1
	if month == time.December {
		nextYear, nextMonth = year+1, time.January
	}
	firstNext := time.Date(nextYear, nextMonth, 1, 0, 0, 0, 0, time.UTC)
	return firstNext.AddDate(0, 0, -1)
}

// bucketStartFor returns the canonical start of the bucket containing
// date, per the calendar-bucketing rules for period.
func bucketStartFor(date time.Time, period Period, weekStart WeekStart, customDays int, rangeStart time.Time) time.Time {
	switch period {
	case PeriodDaily:
		return date
	case PeriodWeekly:
		wd := int(date.Weekday()) // Sunday=0..Saturday=6
		var offset int
		if weekStart == WeekStartMonday {
			offset = (wd + 6) % 7
		} else {
			offset = wd
		}
		return date.AddDate(0, 0, -offset)
	case PeriodMonthly:
		y, m, _ := date.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case PeriodQuarterly:
		y, m, _ := date.Date()
		q0 := ((int(m) - 1) / 3) * 3 // 0,3,6,9
		return time.Date(y, time.Month(q0+1), 1, 0, 0, 0, 0, time.UTC)
	case PeriodYearly:
		return time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case PeriodRange:
		return rangeStart
	case PeriodCustom:
		delta := int(date.Sub(rangeStart).Hours() / 24)
		if delta < 0 {
			return rangeStart
		}
		steps := delta / customDays
		return rangeStart.AddDate(0, 0, steps*customDays)
	default:
		return date
	}
}

func bucketEndFor(start time.Time, period Period, customDays int, rangeEnd time.Time) time.Time {
	switch period {
	case PeriodDaily:
		return start
	case PeriodWeekly:
		return start.AddDate(0, 0, 6)
	case PeriodMonthly:
		y, m, _ := start.Date()
		return lastDayOfMonth(y, m)
	case PeriodQuarterly:
		y, m, _ := start.Date()
		return lastDayOfMonth(y, m+2)
	case PeriodYearly:
		return time.Date(start.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	case PeriodRange:
		return rangeEnd
	case PeriodCustom:
		return start.AddDate(0, 0, customDays-1)
	default:
		return start
	}
}

func nextBucketStart(start time.Time, period Period, customDays int) time.Time {
	switch period {
	case PeriodDaily:
		return start.AddDate(0, 0, 1)
	case PeriodWeekly:
		return start.AddDate(0, 0, 7)
	case PeriodCustom:
		return start.AddDate(0, 0, customDays)
	case PeriodMonthly:
		return start.AddDate(0, 1, 0)
	case PeriodQuarterly:
		return start.AddDate(0, 3, 0)
	case PeriodYearly:
		return start.AddDate(1, 0, 0)
	default: // PeriodRange: caller special-cases, never advances
		return start
	}
}

func clampDate(date, min, max time.Time) time.Time {
	if date.Before(min) {
		return min
	}
	if date.After(max) {
		return max
	}
	return date
}
