// Package config resolves keepbook's runtime configuration from
// environment variables via small getEnv/getEnvAsInt/getEnvAsIntPtr/
// getEnvAsDays/getEnvAsMinutes/getEnvAsList helpers, loaded through github.com/joho/godotenv so a local .env
// file can override the shell.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/keepbook/internal/utils"
)

// Config holds keepbook's resolved runtime settings.
type Config struct {
	// Storage
	DataDir string

	// Valuation
	ReportingCurrency string
	CurrencyDecimals  *int32

	// Staleness
	BalanceStaleness time.Duration
	PriceStaleness   time.Duration

	// Spending report defaults
	IgnoreAccounts    []string
	IgnoreConnections []string
	IgnoreTags        []string

	// MarketDataService lookback window
	LookbackDays int

	// Server
	Port int

	// Logging
	LogLevel string
}

// Load reads configuration from the environment, applying keepbook's
// documented defaults to anything unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("KEEPBOOK_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("config: resolve data dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("config: create data dir %s: %w", dataDir, err)
	}

	cfg := &Config{
		DataDir:           dataDir,
		ReportingCurrency: strings.ToUpper(getEnv("KEEPBOOK_REPORTING_CURRENCY", "USD")),
		CurrencyDecimals:  getEnvAsIntPtr("KEEPBOOK_CURRENCY_DECIMALS"),
		BalanceStaleness:  getEnvAsDays("KEEPBOOK_BALANCE_STALENESS_DAYS", 14),
		PriceStaleness:    getEnvAsMinutes("KEEPBOOK_PRICE_STALENESS_MINUTES", 60),
		IgnoreAccounts:    getEnvAsList("KEEPBOOK_IGNORE_ACCOUNTS"),
		IgnoreConnections: getEnvAsList("KEEPBOOK_IGNORE_CONNECTIONS"),
		IgnoreTags:        getEnvAsList("KEEPBOOK_IGNORE_TAGS"),
		LookbackDays:      getEnvAsInt("KEEPBOOK_LOOKBACK_DAYS", 7),
		Port:              getEnvAsInt("KEEPBOOK_PORT", 8080),
		LogLevel:          getEnv("KEEPBOOK_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and sane.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: KEEPBOOK_DATA_DIR is required")
	}
	if c.ReportingCurrency == "" {
		return fmt.Errorf("config: KEEPBOOK_REPORTING_CURRENCY is required")
	}
	if len(c.ReportingCurrency) != 3 {
		return fmt.Errorf("config: KEEPBOOK_REPORTING_CURRENCY must be a 3-letter ISO code, got %q", c.ReportingCurrency)
	}
	if c.CurrencyDecimals != nil && (*c.CurrencyDecimals < 0 || *c.CurrencyDecimals > 18) {
		return fmt.Errorf("config: KEEPBOOK_CURRENCY_DECIMALS must be between 0 and 18, got %d", *c.CurrencyDecimals)
	}
	if c.BalanceStaleness <= 0 {
		return fmt.Errorf("config: KEEPBOOK_BALANCE_STALENESS_DAYS must be positive")
	}
	if c.PriceStaleness <= 0 {
		return fmt.Errorf("config: KEEPBOOK_PRICE_STALENESS_MINUTES must be positive")
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("config: KEEPBOOK_LOOKBACK_DAYS must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: KEEPBOOK_PORT must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsIntPtr(key string) *int32 {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	intVal, err := strconv.ParseInt(value, 10, 32)
	if err != nil {
		return nil
	}
	v := int32(intVal)
	return &v
}

func getEnvAsDays(key string, defaultDays int) time.Duration {
	days := getEnvAsInt(key, defaultDays)
	return time.Duration(days) * 24 * time.Hour
}

func getEnvAsMinutes(key string, defaultMinutes int) time.Duration {
	minutes := getEnvAsInt(key, defaultMinutes)
	return time.Duration(minutes) * time.Minute
}

func getEnvAsList(key string) []string {
	return utils.ParseCSV(os.Getenv(key))
}
