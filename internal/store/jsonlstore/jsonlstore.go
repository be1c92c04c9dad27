// Package jsonlstore is the reference MarketDataStore: one JSONL file
// per (asset, year) and per (pair, year), rewritten in sorted order on
// every write, plus a single append-only registry index file, under a
// data directory. Concurrent writers to
// the same file serialize on a per-path mutex; different files need no
// coordination.
package jsonlstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/keepbook/internal/asset"
	"github.com/aristath/keepbook/internal/domain"
	"github.com/aristath/keepbook/internal/money"
)

// Store is a filesystem-backed domain.MarketDataStore.
type Store struct {
	baseDir string
	log     zerolog.Logger

	mu        sync.Mutex
	fileLocks map[string]*sync.Mutex
}

// New returns a Store rooted at baseDir. baseDir is created lazily on
// first write.
func New(baseDir string, log zerolog.Logger) *Store {
	return &Store{
		baseDir:   baseDir,
		log:       log.With().Str("component", "jsonlstore").Logger(),
		fileLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) fileLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.fileLocks[path]
	if !ok {
		l = &sync.Mutex{}
		s.fileLocks[path] = l
	}
	return l
}

func (s *Store) pricesDir(id asset.ID) string {
	return filepath.Join(s.baseDir, "prices", filepath.FromSlash(string(id)))
}

func (s *Store) priceFile(id asset.ID, date time.Time) string {
	return filepath.Join(s.pricesDir(id), fmt.Sprintf("%04d.jsonl", date.Year()))
}

func (s *Store) fxDir(base, quote string) string {
	pair := sanitizeCode(base) + "-" + sanitizeCode(quote)
	return filepath.Join(s.baseDir, "fx", pair)
}

func (s *Store) fxFile(base, quote string, date time.Time) string {
	return filepath.Join(s.fxDir(base, quote), fmt.Sprintf("%04d.jsonl", date.Year()))
}

func (s *Store) assetsIndexFile() string {
	return filepath.Join(s.baseDir, "assets", "index.jsonl")
}

func sanitizeCode(v string) string {
	v = strings.TrimSpace(v)
	var b strings.Builder
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.ToUpper(b.String())
}

// --- generic jsonl line I/O ---------------------------------------------

func readJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var items []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var item T
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("parse jsonl line in %s: %w", path, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return items, nil
}

func writeJSONL[T any](path string, items []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	var b strings.Builder
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal jsonl item: %w", err)
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

func appendJSONL[T any](path string, items []T) error {
	if len(items) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	defer f.Close()
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal jsonl item: %w", err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append to %s: %w", path, err)
		}
	}
	return nil
}

// --- DTOs: on-disk shape keeps money as textual numerals ----------------

type priceDTO struct {
	AssetID       string `json:"asset_id"`
	AsOfDate      string `json:"as_of_date"`
	Timestamp     string `json:"timestamp"`
	Price         string `json:"price"`
	QuoteCurrency string `json:"quote_currency"`
	Kind          string `json:"kind"`
	Source        string `json:"source"`
}

type fxDTO struct {
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	AsOfDate  string `json:"as_of_date"`
	Timestamp string `json:"timestamp"`
	Rate      string `json:"rate"`
	Kind      string `json:"kind"`
	Source    string `json:"source"`
}

type assetEntryDTO struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	ISOCode     string            `json:"iso_code,omitempty"`
	Ticker      string            `json:"ticker,omitempty"`
	Exchange    string            `json:"exchange,omitempty"`
	Symbol      string            `json:"symbol,omitempty"`
	Network     string            `json:"network,omitempty"`
	ProviderIDs map[string]string `json:"provider_ids,omitempty"`
	Timezone    string            `json:"tz,omitempty"`
}

const dateLayout = "2006-01-02"

func parsePriceKind(s string) domain.PriceKind {
	switch s {
	case "adj_close":
		return domain.PriceAdjClose
	case "quote":
		return domain.PriceQuote
	default:
		return domain.PriceClose
	}
}

func toPriceDTO(p domain.PricePoint) priceDTO {
	return priceDTO{
		AssetID:       string(p.AssetID),
		AsOfDate:      p.AsOfDate.Format(dateLayout),
		Timestamp:     p.Timestamp.UTC().Format(time.RFC3339Nano),
		Price:         money.Format(p.Price),
		QuoteCurrency: p.QuoteCurrency,
		Kind:          p.Kind.String(),
		Source:        p.Source,
	}
}

func fromPriceDTO(d priceDTO) (domain.PricePoint, error) {
	asOf, err := time.Parse(dateLayout, d.AsOfDate)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("parse as_of_date %q: %w", d.AsOfDate, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, d.Timestamp)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("parse timestamp %q: %w", d.Timestamp, err)
	}
	price, err := money.Parse(d.Price)
	if err != nil {
		return domain.PricePoint{}, err
	}
	return domain.PricePoint{
		AssetID:       asset.ID(d.AssetID),
		AsOfDate:      asOf,
		Timestamp:     ts,
		Price:         price,
		QuoteCurrency: d.QuoteCurrency,
		Kind:          parsePriceKind(d.Kind),
		Source:        d.Source,
	}, nil
}

func toFxDTO(p domain.FxRatePoint) fxDTO {
	return fxDTO{
		Base:      p.Base,
		Quote:     p.Quote,
		AsOfDate:  p.AsOfDate.Format(dateLayout),
		Timestamp: p.Timestamp.UTC().Format(time.RFC3339Nano),
		Rate:      money.Format(p.Rate),
		Kind:      p.Kind.String(),
		Source:    p.Source,
	}
}

func fromFxDTO(d fxDTO) (domain.FxRatePoint, error) {
	asOf, err := time.Parse(dateLayout, d.AsOfDate)
	if err != nil {
		return domain.FxRatePoint{}, fmt.Errorf("parse as_of_date %q: %w", d.AsOfDate, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, d.Timestamp)
	if err != nil {
		return domain.FxRatePoint{}, fmt.Errorf("parse timestamp %q: %w", d.Timestamp, err)
	}
	rate, err := money.Parse(d.Rate)
	if err != nil {
		return domain.FxRatePoint{}, err
	}
	return domain.FxRatePoint{
		Base:      d.Base,
		Quote:     d.Quote,
		AsOfDate:  asOf,
		Timestamp: ts,
		Rate:      rate,
		Kind:      domain.FxClose,
		Source:    d.Source,
	}, nil
}

func toAssetEntryDTO(e domain.AssetRegistryEntry) assetEntryDTO {
	a := e.Asset
	return assetEntryDTO{
		ID:          string(e.ID),
		Kind:        a.Kind.String(),
		ISOCode:     a.ISOCode,
		Ticker:      a.Ticker,
		Exchange:    a.Exchange,
		Symbol:      a.Symbol,
		Network:     a.Network,
		ProviderIDs: e.ProviderIDs,
		Timezone:    e.Timezone,
	}
}

func fromAssetEntryDTO(d assetEntryDTO) domain.AssetRegistryEntry {
	var a asset.Asset
	switch d.Kind {
	case "equity":
		a = asset.Equity(d.Ticker, d.Exchange)
	case "crypto":
		a = asset.Crypto(d.Symbol, d.Network)
	default:
		a = asset.Currency(d.ISOCode)
	}
	return domain.AssetRegistryEntry{
		ID:          asset.ID(d.ID),
		Asset:       a,
		ProviderIDs: d.ProviderIDs,
		Timezone:    d.Timezone,
	}
}

// --- sorting: (timestamp, as_of_date, kind_rank, quote_currency, source, price) ---

func sortPrices(items []domain.PricePoint) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if !a.AsOfDate.Equal(b.AsOfDate) {
			return a.AsOfDate.Before(b.AsOfDate)
		}
		if a.Kind.KindRank() != b.Kind.KindRank() {
			return a.Kind.KindRank() < b.Kind.KindRank()
		}
		if a.QuoteCurrency != b.QuoteCurrency {
			return a.QuoteCurrency < b.QuoteCurrency
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if !a.Price.Equal(b.Price) {
			return a.Price.LessThan(b.Price)
		}
		return a.AssetID < b.AssetID
	})
}

func sortFxRates(items []domain.FxRatePoint) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if !a.AsOfDate.Equal(b.AsOfDate) {
			return a.AsOfDate.Before(b.AsOfDate)
		}
		if a.Base != b.Base {
			return a.Base < b.Base
		}
		if a.Quote != b.Quote {
			return a.Quote < b.Quote
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Rate.LessThan(b.Rate)
	})
}

func selectLatestPrice(items []domain.PricePoint, date time.Time, kind domain.PriceKind) *domain.PricePoint {
	var best *domain.PricePoint
	for i := range items {
		p := items[i]
		if !sameDate(p.AsOfDate, date) || p.Kind != kind {
			continue
		}
		if best == nil || !p.Timestamp.Before(best.Timestamp) {
			cp := p
			best = &cp
		}
	}
	return best
}

func selectLatestFx(items []domain.FxRatePoint, date time.Time, kind domain.FxKind) *domain.FxRatePoint {
	var best *domain.FxRatePoint
	for i := range items {
		r := items[i]
		if !sameDate(r.AsOfDate, date) || r.Kind != kind {
			continue
		}
		if best == nil || !r.Timestamp.Before(best.Timestamp) {
			cp := r
			best = &cp
		}
	}
	return best
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// --- domain.MarketDataStore ----------------------------------------------

// GetPrice returns the latest observation for (id, date, kind), or nil
// if none exists.
func (s *Store) GetPrice(ctx context.Context, id asset.ID, date time.Time, kind domain.PriceKind) (*domain.PricePoint, error) {
	path := s.priceFile(id, date)
	dtos, err := readJSONL[priceDTO](path)
	if err != nil {
		return nil, err
	}
	items := make([]domain.PricePoint, 0, len(dtos))
	for _, d := range dtos {
		p, err := fromPriceDTO(d)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return selectLatestPrice(items, date, kind), nil
}

// GetAllPrices returns every observation for id across all years,
// sorted by timestamp ascending.
func (s *Store) GetAllPrices(ctx context.Context, id asset.ID) ([]domain.PricePoint, error) {
	dir := s.pricesDir(id)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var all []domain.PricePoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		dtos, err := readJSONL[priceDTO](filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		for _, d := range dtos {
			p, err := fromPriceDTO(d)
			if err != nil {
				return nil, err
			}
			all = append(all, p)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

// PutPrices persists points, grouped by (asset_id, year), merging with
// whatever is already on disk and rewriting each year file in sorted
// order.
func (s *Store) PutPrices(ctx context.Context, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	type key struct {
		id   asset.ID
		year int
	}
	grouped := make(map[key][]domain.PricePoint)
	for _, p := range points {
		k := key{id: p.AssetID, year: p.AsOfDate.Year()}
		grouped[k] = append(grouped[k], p)
	}
	for k, items := range grouped {
		date := time.Date(k.year, 1, 1, 0, 0, 0, 0, time.UTC)
		path := s.priceFile(k.id, date)
		lock := s.fileLock(path)
		lock.Lock()
		err := func() error {
			dtos, err := readJSONL[priceDTO](path)
			if err != nil {
				return err
			}
			existing := make([]domain.PricePoint, 0, len(dtos))
			for _, d := range dtos {
				p, err := fromPriceDTO(d)
				if err != nil {
					return err
				}
				existing = append(existing, p)
			}
			existing = append(existing, items...)
			sortPrices(existing)
			out := make([]priceDTO, len(existing))
			for i, p := range existing {
				out[i] = toPriceDTO(p)
			}
			return writeJSONL(path, out)
		}()
		lock.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// GetFxRate returns the latest observation for (base, quote, date,
// kind), or nil if none exists.
func (s *Store) GetFxRate(ctx context.Context, base, quote string, date time.Time, kind domain.FxKind) (*domain.FxRatePoint, error) {
	path := s.fxFile(base, quote, date)
	dtos, err := readJSONL[fxDTO](path)
	if err != nil {
		return nil, err
	}
	items := make([]domain.FxRatePoint, 0, len(dtos))
	for _, d := range dtos {
		r, err := fromFxDTO(d)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return selectLatestFx(items, date, kind), nil
}

// GetAllFxRates returns every observation for (base, quote) across all
// years, sorted by timestamp ascending.
func (s *Store) GetAllFxRates(ctx context.Context, base, quote string) ([]domain.FxRatePoint, error) {
	dir := s.fxDir(base, quote)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var all []domain.FxRatePoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		dtos, err := readJSONL[fxDTO](filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		for _, d := range dtos {
			r, err := fromFxDTO(d)
			if err != nil {
				return nil, err
			}
			all = append(all, r)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return all, nil
}

// PutFxRates persists rates, grouped by (base, quote, year).
func (s *Store) PutFxRates(ctx context.Context, rates []domain.FxRatePoint) error {
	if len(rates) == 0 {
		return nil
	}
	type key struct {
		base, quote string
		year        int
	}
	grouped := make(map[key][]domain.FxRatePoint)
	for _, r := range rates {
		k := key{base: r.Base, quote: r.Quote, year: r.AsOfDate.Year()}
		grouped[k] = append(grouped[k], r)
	}
	for k, items := range grouped {
		date := time.Date(k.year, 1, 1, 0, 0, 0, 0, time.UTC)
		path := s.fxFile(k.base, k.quote, date)
		lock := s.fileLock(path)
		lock.Lock()
		err := func() error {
			dtos, err := readJSONL[fxDTO](path)
			if err != nil {
				return err
			}
			existing := make([]domain.FxRatePoint, 0, len(dtos))
			for _, d := range dtos {
				r, err := fromFxDTO(d)
				if err != nil {
					return err
				}
				existing = append(existing, r)
			}
			existing = append(existing, items...)
			sortFxRates(existing)
			out := make([]fxDTO, len(existing))
			for i, r := range existing {
				out[i] = toFxDTO(r)
			}
			return writeJSONL(path, out)
		}()
		lock.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// GetAssetEntry returns the latest registry entry for id, or nil if
// never registered.
func (s *Store) GetAssetEntry(ctx context.Context, id asset.ID) (*domain.AssetRegistryEntry, error) {
	path := s.assetsIndexFile()
	dtos, err := readJSONL[assetEntryDTO](path)
	if err != nil {
		return nil, err
	}
	for i := len(dtos) - 1; i >= 0; i-- {
		if dtos[i].ID == string(id) {
			entry := fromAssetEntryDTO(dtos[i])
			return &entry, nil
		}
	}
	return nil, nil
}

// UpsertAssetEntry appends a new registry entry. The registry is
// append-only; readers take the latest entry for a given id.
func (s *Store) UpsertAssetEntry(ctx context.Context, entry domain.AssetRegistryEntry) error {
	path := s.assetsIndexFile()
	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()
	return appendJSONL(path, []assetEntryDTO{toAssetEntryDTO(entry)})
}

var _ domain.MarketDataStore = (*Store)(nil)
