// Package staleness resolves the effective staleness threshold for an
// account's balances and checks whether a balance or price observation
// has aged past it.
package staleness

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/domain"
)

// DefaultBalanceStaleness is the global fallback when neither an
// account nor its connection overrides the threshold.
const DefaultBalanceStaleness = 14 * 24 * time.Hour

// Check is the outcome of a staleness evaluation.
type Check struct {
	IsStale   bool
	Age       *time.Duration // nil means "never observed"
	Threshold time.Duration
}

func stale(age, threshold time.Duration) Check {
	return Check{IsStale: true, Age: &age, Threshold: threshold}
}

func fresh(age, threshold time.Duration) Check {
	return Check{IsStale: false, Age: &age, Threshold: threshold}
}

func missing(threshold time.Duration) Check {
	return Check{IsStale: true, Threshold: threshold}
}

// ResolveBalanceStaleness resolves the effective threshold for account,
// in override order: the account's own setting, then its connection's,
// then the global default.
func ResolveBalanceStaleness(account *domain.Account, connection domain.Connection) time.Duration {
	if account != nil && account.BalanceStaleness != nil {
		return *account.BalanceStaleness
	}
	if connection.BalanceStaleness != nil {
		return *connection.BalanceStaleness
	}
	return DefaultBalanceStaleness
}

// CheckBalanceStaleness reports whether connection's balances are
// stale relative to threshold, using clock for "now". A connection
// that has never synced is always stale.
func CheckBalanceStaleness(connection domain.Connection, threshold time.Duration, clock domain.Clock) Check {
	if connection.LastSync == nil {
		return missing(threshold)
	}
	age := clock.Now().Sub(*connection.LastSync)
	if age > threshold {
		return stale(age, threshold)
	}
	return fresh(age, threshold)
}

// CheckPriceStaleness reports whether price is stale relative to
// threshold. A nil price is always stale.
func CheckPriceStaleness(price *domain.PricePoint, threshold time.Duration, clock domain.Clock) Check {
	if price == nil {
		return missing(threshold)
	}
	age := clock.Now().Sub(price.Timestamp)
	if age > threshold {
		return stale(age, threshold)
	}
	return fresh(age, threshold)
}

// LogBalanceStaleness emits a structured staleness summary for a
// connection's balances, mirroring the per-field logging convention
// used across keepbook's ambient logging.
func LogBalanceStaleness(log zerolog.Logger, connectionName string, check Check) {
	status := "fresh"
	if check.IsStale {
		status = "stale"
	}
	event := log.Info().Str("connection", connectionName).Str("status", status).Dur("threshold", check.Threshold)
	if check.Age != nil {
		event = event.Dur("age", *check.Age)
	} else {
		event = event.Str("age", "never")
	}
	event.Msg("balance staleness check")
}

// LogPriceStaleness emits a structured staleness summary for an
// asset's price.
func LogPriceStaleness(log zerolog.Logger, assetID string, check Check) {
	status := "fresh"
	if check.IsStale {
		status = "stale"
	}
	event := log.Info().Str("asset", assetID).Str("status", status).Dur("threshold", check.Threshold)
	if check.Age != nil {
		event = event.Dur("age", *check.Age)
	} else {
		event = event.Str("age", "never")
	}
	event.Msg("price staleness check")
}
