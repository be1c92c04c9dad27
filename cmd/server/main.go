package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/keepbook/internal/config"
	"github.com/aristath/keepbook/internal/marketdata"
	"github.com/aristath/keepbook/internal/portfolio"
	"github.com/aristath/keepbook/internal/refdata"
	"github.com/aristath/keepbook/internal/scheduler"
	"github.com/aristath/keepbook/internal/server"
	"github.com/aristath/keepbook/internal/source/registry"
	"github.com/aristath/keepbook/internal/spending"
	"github.com/aristath/keepbook/internal/store/jsonlstore"
	"github.com/aristath/keepbook/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Str("reporting_currency", cfg.ReportingCurrency).Msg("starting keepbook")

	db, err := refdata.Open(refdata.Config{Path: filepath.Join(cfg.DataDir, "keepbook.db")})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open reference database")
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate reference database")
	}

	accounts := refdata.New(db, log)

	marketStore := jsonlstore.New(filepath.Join(cfg.DataDir, "market"), log)

	sourceRegistry := registry.New(cfg.DataDir, log)
	if err := sourceRegistry.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load price source configuration")
	}

	market := marketdata.New(marketStore, log).
		WithEquityRouter(marketdata.NewEquityPriceRouter(sourceRegistry.BuildEquitySources(), log)).
		WithFxRouter(marketdata.NewFxRateRouter(sourceRegistry.BuildFxSources(), log)).
		WithLookbackDays(cfg.LookbackDays).
		WithQuoteStaleness(cfg.PriceStaleness)
	if cryptoSources := sourceRegistry.BuildCryptoSources(); len(cryptoSources) > 0 {
		market = market.WithCryptoRouter(marketdata.NewCryptoPriceRouter(cryptoSources, log))
	}

	portfolioService := portfolio.New(accounts, market, log)
	spendingService := spending.New(accounts, market, log)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	priceRefresh := scheduler.NewPriceRefreshJob(accounts, market, cfg.ReportingCurrency, cfg.PriceStaleness, log)
	if err := sched.AddJob("0 */15 * * * *", priceRefresh); err != nil {
		log.Fatal().Err(err).Msg("failed to register price refresh job")
	}

	srv := server.New(server.Config{
		Port:             cfg.Port,
		Log:              log,
		Accounts:         accounts,
		Portfolio:        portfolioService,
		Spending:         spendingService,
		BalanceStaleness: cfg.BalanceStaleness,
		DevMode:          cfg.LogLevel == "debug",
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("stopped")
}
