package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"KEEPBOOK_DATA_DIR", "KEEPBOOK_REPORTING_CURRENCY", "KEEPBOOK_CURRENCY_DECIMALS",
		"KEEPBOOK_BALANCE_STALENESS_DAYS", "KEEPBOOK_PRICE_STALENESS_MINUTES",
		"KEEPBOOK_IGNORE_ACCOUNTS", "KEEPBOOK_IGNORE_CONNECTIONS", "KEEPBOOK_IGNORE_TAGS",
		"KEEPBOOK_LOOKBACK_DAYS", "KEEPBOOK_PORT", "KEEPBOOK_LOG_LEVEL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("KEEPBOOK_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "USD", cfg.ReportingCurrency)
	require.Nil(t, cfg.CurrencyDecimals)
	require.Equal(t, 14*24*time.Hour, cfg.BalanceStaleness)
	require.Equal(t, 60*time.Minute, cfg.PriceStaleness)
	require.Equal(t, 7, cfg.LookbackDays)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.Empty(t, cfg.IgnoreAccounts)
}

func TestLoadReadsOverridesAndCreatesDataDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir() + "/nested/data"
	t.Setenv("KEEPBOOK_DATA_DIR", dir)
	t.Setenv("KEEPBOOK_REPORTING_CURRENCY", "eur")
	t.Setenv("KEEPBOOK_CURRENCY_DECIMALS", "2")
	t.Setenv("KEEPBOOK_BALANCE_STALENESS_DAYS", "3")
	t.Setenv("KEEPBOOK_PRICE_STALENESS_MINUTES", "15")
	t.Setenv("KEEPBOOK_IGNORE_ACCOUNTS", "acct-1, acct-2")
	t.Setenv("KEEPBOOK_IGNORE_TAGS", "brokerage")
	t.Setenv("KEEPBOOK_PORT", "9091")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "EUR", cfg.ReportingCurrency)
	require.NotNil(t, cfg.CurrencyDecimals)
	require.EqualValues(t, 2, *cfg.CurrencyDecimals)
	require.Equal(t, 3*24*time.Hour, cfg.BalanceStaleness)
	require.Equal(t, 15*time.Minute, cfg.PriceStaleness)
	require.Equal(t, []string{"acct-1", "acct-2"}, cfg.IgnoreAccounts)
	require.Equal(t, []string{"brokerage"}, cfg.IgnoreTags)
	require.Equal(t, 9091, cfg.Port)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestValidateRejectsBadReportingCurrency(t *testing.T) {
	cfg := &Config{
		DataDir:           t.TempDir(),
		ReportingCurrency: "US",
		BalanceStaleness:  time.Hour,
		PriceStaleness:    time.Minute,
		LookbackDays:      1,
		Port:              80,
	}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := &Config{
		DataDir:           t.TempDir(),
		ReportingCurrency: "USD",
		BalanceStaleness:  time.Hour,
		PriceStaleness:    time.Minute,
		LookbackDays:      1,
		Port:              70000,
	}
	require.Error(t, cfg.Validate())
}
