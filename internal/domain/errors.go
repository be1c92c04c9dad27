package domain

import "errors"

// Sentinel errors shared across keepbook's service packages, checked
// with errors.Is rather than matched by string. Error kinds the core
// recovers from locally (NoClosePrice/NoFxRate) are plain sentinels;
// kinds that abort an operation are still wrapped with context via
// fmt.Errorf("...: %w", ErrX).
var (
	// ErrNoClosePrice means the store has no close price for an asset
	// on or before the requested date. Portfolio renders a nil value;
	// spending counts a missing-price row and skips it.
	ErrNoClosePrice = errors.New("no close price found")

	// ErrNoFxRate is ErrNoClosePrice's counterpart for exchange rates.
	ErrNoFxRate = errors.New("no fx rate found")

	// ErrInvalidPeriod, ErrInvalidGranularity, and ErrInvalidScope are
	// user-input errors: the caller should surface them immediately,
	// before any report work begins.
	ErrInvalidPeriod      = errors.New("invalid period")
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrInvalidScope       = errors.New("invalid scope")
)
