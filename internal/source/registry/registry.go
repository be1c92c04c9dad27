// Package registry loads price-source configuration from a data
// directory and builds the configured equity, crypto, and FX source
// adapters. Each source lives in its own subdirectory under
// price_sources/<name>/ and carries a source.toml or source.yaml
// describing its type, priority, enabled flag, and credentials.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/source/alphavantage"
	"github.com/aristath/keepbook/internal/source/coincap"
	"github.com/aristath/keepbook/internal/source/coingecko"
	"github.com/aristath/keepbook/internal/source/cryptocompare"
	"github.com/aristath/keepbook/internal/source/eodhd"
	"github.com/aristath/keepbook/internal/source/frankfurter"
	"github.com/aristath/keepbook/internal/source/marketstack"
	"github.com/aristath/keepbook/internal/source/twelvedata"
)

// SourceType identifies which adapter a configuration entry builds.
type SourceType string

const (
	TypeEodhd         SourceType = "eodhd"
	TypeTwelveData    SourceType = "twelve_data"
	TypeAlphaVantage  SourceType = "alpha_vantage"
	TypeMarketstack   SourceType = "marketstack"
	TypeCoingecko     SourceType = "coingecko"
	TypeCryptocompare SourceType = "cryptocompare"
	TypeCoincap       SourceType = "coincap"
	TypeFrankfurter   SourceType = "frankfurter"
)

// sourceFile is the on-disk shape of source.toml/source.yaml.
type sourceFile struct {
	Type          SourceType        `toml:"type" yaml:"type"`
	Enabled       bool              `toml:"enabled" yaml:"enabled"`
	Priority      int               `toml:"priority" yaml:"priority"`
	APIKey        string            `toml:"api_key" yaml:"api_key"`
	QuoteCurrency string            `toml:"quote_currency" yaml:"quote_currency"`
	SymbolMap     map[string]string `toml:"symbol_map" yaml:"symbol_map"`
}

// LoadedSource pairs a directory name with its parsed configuration.
type LoadedSource struct {
	Name   string
	Config sourceFile
}

// Registry holds the set of price sources discovered under a data
// directory's price_sources/ subtree.
type Registry struct {
	sourcesDir string
	log        zerolog.Logger
	loaded     []LoadedSource
}

// New returns a Registry rooted at dataDir/price_sources.
func New(dataDir string, log zerolog.Logger) *Registry {
	return &Registry{
		sourcesDir: filepath.Join(dataDir, "price_sources"),
		log:        log.With().Str("component", "source_registry").Logger(),
	}
}

// Load reads every price_sources/<name>/source.{toml,yaml} file,
// skipping disabled sources and directories without a recognized
// config file, then sorts the result by ascending priority (lower
// values take precedence). A malformed individual config file is
// logged and skipped rather than aborting the whole load.
func (r *Registry) Load() error {
	r.loaded = nil

	entries, err := os.ReadDir(r.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: read %s: %w", r.sourcesDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dir := filepath.Join(r.sourcesDir, name)

		cfg, err := loadSourceFile(dir)
		if err != nil {
			r.log.Warn().Err(err).Str("source", name).Msg("skipping unreadable source config")
			continue
		}
		if cfg == nil {
			continue // no source.toml/source.yaml present
		}
		if !cfg.Enabled {
			continue
		}
		r.loaded = append(r.loaded, LoadedSource{Name: name, Config: *cfg})
	}

	sort.SliceStable(r.loaded, func(i, j int) bool {
		return r.loaded[i].Config.Priority < r.loaded[j].Config.Priority
	})

	return nil
}

func loadSourceFile(dir string) (*sourceFile, error) {
	if data, err := os.ReadFile(filepath.Join(dir, "source.toml")); err == nil {
		var cfg sourceFile
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse source.toml: %w", err)
		}
		return &cfg, nil
	}
	if data, err := os.ReadFile(filepath.Join(dir, "source.yaml")); err == nil {
		var cfg sourceFile
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse source.yaml: %w", err)
		}
		return &cfg, nil
	}
	return nil, nil
}

// Sources returns the loaded configurations in priority order.
func (r *Registry) Sources() []LoadedSource { return r.loaded }

// requireAPIKey returns an error naming the source if no API key is
// configured, matching the original implementation's rule that a
// credentialed source missing its credentials fails only its own
// build step, not the whole registry load.
func requireAPIKey(loaded LoadedSource) (string, error) {
	if loaded.Config.APIKey == "" {
		return "", fmt.Errorf("registry: source %q (%s) requires an api_key", loaded.Name, loaded.Config.Type)
	}
	return loaded.Config.APIKey, nil
}

// BuildEquitySources constructs the equity adapters for every loaded
// equity-capable source, in priority order. A source whose credentials
// are missing is skipped with a logged warning rather than aborting
// construction of the remaining sources.
func (r *Registry) BuildEquitySources() []domain.EquityPriceSource {
	var sources []domain.EquityPriceSource
	for _, loaded := range r.loaded {
		switch loaded.Config.Type {
		case TypeEodhd:
			key, err := requireAPIKey(loaded)
			if err != nil {
				r.log.Warn().Err(err).Msg("skipping equity source")
				continue
			}
			sources = append(sources, eodhd.New(key, r.log))
		case TypeTwelveData:
			key, err := requireAPIKey(loaded)
			if err != nil {
				r.log.Warn().Err(err).Msg("skipping equity source")
				continue
			}
			sources = append(sources, twelvedata.New(key, r.log))
		case TypeAlphaVantage:
			key, err := requireAPIKey(loaded)
			if err != nil {
				r.log.Warn().Err(err).Msg("skipping equity source")
				continue
			}
			sources = append(sources, alphavantage.New(key, r.log))
		case TypeMarketstack:
			key, err := requireAPIKey(loaded)
			if err != nil {
				r.log.Warn().Err(err).Msg("skipping equity source")
				continue
			}
			sources = append(sources, marketstack.New(key, r.log))
		default:
			continue // not an equity source
		}
	}
	return sources
}

// BuildCryptoSources constructs the crypto adapters for every loaded
// crypto-capable source, in priority order. CoinGecko, CryptoCompare,
// and CoinCap all work without credentials; an api_key, if present,
// is attached to CryptoCompare and CoinCap for higher rate limits, and
// symbol_map entries register custom ticker -> provider-id overrides
// for CoinGecko and CoinCap.
func (r *Registry) BuildCryptoSources() []domain.CryptoPriceSource {
	var sources []domain.CryptoPriceSource
	for _, loaded := range r.loaded {
		switch loaded.Config.Type {
		case TypeCoingecko:
			src := coingecko.New(r.log)
			for symbol, id := range loaded.Config.SymbolMap {
				src.WithMapping(symbol, id)
			}
			sources = append(sources, src)
		case TypeCryptocompare:
			src := cryptocompare.New(r.log)
			if loaded.Config.APIKey != "" {
				src.WithAPIKey(loaded.Config.APIKey)
			}
			sources = append(sources, src)
		case TypeCoincap:
			src := coincap.New(r.log)
			if loaded.Config.APIKey != "" {
				src.WithAPIKey(loaded.Config.APIKey)
			}
			for symbol, id := range loaded.Config.SymbolMap {
				src.WithMapping(symbol, id)
			}
			sources = append(sources, src)
		default:
			continue // not a crypto source
		}
	}
	return sources
}

// BuildFxSources constructs the FX rate adapters for every loaded
// FX-capable source, in priority order.
func (r *Registry) BuildFxSources() []domain.FxRateSource {
	var sources []domain.FxRateSource
	for _, loaded := range r.loaded {
		switch loaded.Config.Type {
		case TypeFrankfurter:
			sources = append(sources, frankfurter.New(r.log))
		default:
			continue // not an FX source
		}
	}
	return sources
}

// String renders a loaded source's type for logging.
func (s SourceType) String() string { return strings.ReplaceAll(string(s), "_", " ") }
