package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/marketdata"
	"github.com/aristath/keepbook/internal/staleness"
	"github.com/aristath/keepbook/internal/utils"
)

// PriceRefreshJob fetches the latest quote for every non-currency asset
// currently held across all accounts, and the latest FX rate for every
// distinct currency held against the reporting currency. It relies on
// marketdata.Service's own cache-then-fetch-then-persist behaviour, so
// a run simply warms the store ahead of the next portfolio valuation.
type PriceRefreshJob struct {
	accounts          domain.AccountProvider
	market            *marketdata.Service
	reportingCurrency string
	priceStaleness    time.Duration
	clock             domain.Clock
	log               zerolog.Logger
}

// NewPriceRefreshJob returns a job that refreshes quotes for assets
// held across accounts, valuing currency pairs against
// reportingCurrency. A refreshed quote older than priceStaleness is
// logged as stale so sources that only serve delayed data show up
// before a portfolio valuation ever consults them.
func NewPriceRefreshJob(accounts domain.AccountProvider, market *marketdata.Service, reportingCurrency string, priceStaleness time.Duration, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		accounts:          accounts,
		market:            market,
		reportingCurrency: reportingCurrency,
		priceStaleness:    priceStaleness,
		clock:             domain.SystemClock{},
		log:               log.With().Str("component", "price_refresh_job").Logger(),
	}
}

// Name implements Job.
func (j *PriceRefreshJob) Name() string { return "price_refresh" }

// Run implements Job.
func (j *PriceRefreshJob) Run() error {
	defer utils.OperationTimer("price_refresh", j.log)()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	held, err := j.heldAssets(ctx)
	if err != nil {
		return fmt.Errorf("price_refresh: list held assets: %w", err)
	}

	now := time.Now().UTC()
	var refreshed, failed int
	for _, a := range held {
		if a.Kind == asset.KindCurrency {
			if a.ISOCode == j.reportingCurrency {
				continue
			}
			rate, err := j.market.FxClose(ctx, a.ISOCode, j.reportingCurrency, now)
			if err != nil {
				j.log.Warn().Err(err).Str("base", a.ISOCode).Str("quote", j.reportingCurrency).Msg("fx refresh failed")
				failed++
				continue
			}
			var priceTS *domain.PricePoint
			if rate != nil {
				priceTS = &domain.PricePoint{Timestamp: rate.Timestamp}
			}
			staleness.LogPriceStaleness(j.log, a.ISOCode+"/"+j.reportingCurrency, staleness.CheckPriceStaleness(priceTS, j.priceStaleness, j.clock))
			refreshed++
			continue
		}
		quote, err := j.market.PriceLatest(ctx, a, now)
		if err != nil {
			j.log.Warn().Err(err).Str("asset", string(asset.IDFrom(a))).Msg("price refresh failed")
			failed++
			continue
		}
		staleness.LogPriceStaleness(j.log, string(asset.IDFrom(a)), staleness.CheckPriceStaleness(quote, j.priceStaleness, j.clock))
		refreshed++
	}

	j.log.Info().Int("refreshed", refreshed).Int("failed", failed).Msg("price refresh complete")
	return nil
}

// heldAssets returns the distinct assets appearing in the latest
// balance snapshot of every active account.
func (j *PriceRefreshJob) heldAssets(ctx context.Context) ([]asset.Asset, error) {
	accounts, err := j.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[asset.ID]asset.Asset)
	for _, acct := range accounts {
		if !acct.Active {
			continue
		}
		snapshots, err := j.accounts.BalanceSnapshots(ctx, acct.ID)
		if err != nil {
			return nil, fmt.Errorf("balance snapshots for %s: %w", acct.ID, err)
		}
		if len(snapshots) == 0 {
			continue
		}
		latest := snapshots[len(snapshots)-1]
		for _, balance := range latest.Balances {
			seen[asset.IDFrom(balance.Asset)] = balance.Asset
		}
	}

	out := make([]asset.Asset, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	return out, nil
}
