// Package registry is the catalog of known currencies.
//
// Every lookup sees enabled entries only. Retiring a currency flips its
// enabled flag (persisted as an override) and never removes the entry, so
// historical references keep resolving through the catalog.
package registry

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"convert_invoices/internal/domain"

	"github.com/btcsuite/btcd/btcutil/base58"
	"gopkg.in/yaml.v3"
)

// identityAddressVersion is the base58check version byte of an iAddress.
const identityAddressVersion = 102

//go:embed default_catalog.yaml
var defaultCatalog []byte

// OverrideStore persists enabled/disabled flips across restarts.
type OverrideStore interface {
	LoadOverrides(ctx context.Context) (map[string]bool, error)
	SaveOverride(ctx context.Context, systemName string, enabled bool) error
}

// Pair is a resolved frequent pair.
type Pair struct {
	From domain.Currency `json:"from"`
	To   domain.Currency `json:"to"`
}

// Registry resolves currencies by name, symbol and iAddress.
// Safe for concurrent use; Reload swaps the whole index atomically.
type Registry struct {
	mu        sync.RWMutex
	catalog   domain.Catalog
	overrides map[string]bool
	entries   []domain.Currency
	bySystem  map[string]int
	bySymbol  map[string]int
	byAddress map[string]int
	version   uint64

	store OverrideStore
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (domain.Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a YAML catalog file.
func LoadCatalog(path string) (domain.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, domain.ConfigurationError("registry.LoadCatalog", "%v", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(data []byte) (domain.Catalog, error) {
	var cat domain.Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return domain.Catalog{}, domain.ConfigurationError("registry.ParseCatalog", "%v", err)
	}
	return cat, nil
}

// New builds a registry from catalog. store may be nil; when set, persisted
// overrides are applied on top of the catalog flags.
func New(ctx context.Context, catalog domain.Catalog, store OverrideStore) (*Registry, error) {
	r := &Registry{store: store, overrides: map[string]bool{}}

	if store != nil {
		ov, err := store.LoadOverrides(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load overrides: %w", err)
		}
		for k, v := range ov {
			r.overrides[k] = v
		}
	}

	if err := r.Reload(catalog); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload validates catalog and swaps it in. On error the previous catalog stays.
func (r *Registry) Reload(catalog domain.Catalog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := buildIndex(catalog, r.overrides)
	if err != nil {
		return err
	}

	r.catalog = catalog
	r.apply(idx)
	r.version++
	slog.Info("Currency registry loaded",
		slog.Int("currencies", len(idx.entries)),
		slog.Int("enabled", len(idx.bySystem)),
		slog.Uint64("version", r.version))
	return nil
}

// SetEnabled retires or restores a catalog entry and persists the flip.
func (r *Registry) SetEnabled(ctx context.Context, systemName string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	known := false
	for _, c := range r.catalog.Currencies {
		if c.SystemName == systemName {
			known = true
			break
		}
	}
	if !known {
		return domain.ConfigurationError("registry.SetEnabled", "currency %q is not in the catalog", systemName)
	}

	next := make(map[string]bool, len(r.overrides)+1)
	for k, v := range r.overrides {
		next[k] = v
	}
	next[systemName] = enabled

	idx, err := buildIndex(r.catalog, next)
	if err != nil {
		return err
	}

	if r.store != nil {
		if err := r.store.SaveOverride(ctx, systemName, enabled); err != nil {
			return fmt.Errorf("failed to persist override: %w", err)
		}
	}

	r.overrides = next
	r.apply(idx)
	r.version++
	slog.Info("Currency flag changed", slog.String("currency", systemName), slog.Bool("enabled", enabled))
	return nil
}

// BySystemName returns the enabled currency with that system name.
func (r *Registry) BySystemName(name string) (domain.Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.bySystem, name)
}

// ByTradingSymbol returns the enabled currency with that trading symbol.
func (r *Registry) ByTradingSymbol(symbol string) (domain.Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.bySymbol, symbol)
}

// ByIAddress returns the enabled currency with that iAddress.
func (r *Registry) ByIAddress(id string) (domain.Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.byAddress, id)
}

// Require is BySystemName that fails with a ConfigurationError.
func (r *Registry) Require(name string) (domain.Currency, error) {
	c, ok := r.BySystemName(name)
	if !ok {
		return domain.Currency{}, domain.ConfigurationError("registry", "currency %q is unknown or disabled", name)
	}
	return c, nil
}

// RequireIAddress is ByIAddress that fails with a ConfigurationError.
func (r *Registry) RequireIAddress(id string) (domain.Currency, error) {
	c, ok := r.ByIAddress(id)
	if !ok {
		return domain.Currency{}, domain.ConfigurationError("registry", "currency %s is unknown or disabled", id)
	}
	return c, nil
}

// Enabled lists enabled currencies in catalog order.
func (r *Registry) Enabled() []domain.Currency {
	return r.filter(func(domain.Currency) bool { return true })
}

// Converters lists enabled converter currencies in catalog order.
func (r *Registry) Converters() []domain.Currency {
	return r.filter(func(c domain.Currency) bool { return c.IsConverter })
}

// FrequentPairs returns configured pairs whose endpoints are both enabled.
func (r *Registry) FrequentPairs() []Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pairs []Pair
	for _, fp := range r.catalog.FrequentPairs {
		from, ok1 := r.lookup(r.bySystem, fp.From)
		to, ok2 := r.lookup(r.bySystem, fp.To)
		if ok1 && ok2 {
			pairs = append(pairs, Pair{From: from, To: to})
		}
	}
	return pairs
}

// DefaultFrom returns the configured starting source currency, if enabled.
func (r *Registry) DefaultFrom() (domain.Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(r.bySystem, r.catalog.DefaultFrom)
}

// Version increments on every successful reload or flag change.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) filter(keep func(domain.Currency) bool) []domain.Currency {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Currency, 0, len(r.bySystem))
	for _, c := range r.entries {
		if c.Enabled && keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) lookup(m map[string]int, key string) (domain.Currency, bool) {
	i, ok := m[key]
	if !ok {
		return domain.Currency{}, false
	}
	return r.entries[i], true
}

// index is a validated, effective view of a catalog.
type index struct {
	entries   []domain.Currency
	bySystem  map[string]int
	bySymbol  map[string]int
	byAddress map[string]int
}

// apply must be called with the write lock held.
func (r *Registry) apply(idx *index) {
	r.entries = idx.entries
	r.bySystem = idx.bySystem
	r.bySymbol = idx.bySymbol
	r.byAddress = idx.byAddress
}

func buildIndex(catalog domain.Catalog, overrides map[string]bool) (*index, error) {
	const op = "registry.Validate"

	idx := &index{
		entries:   make([]domain.Currency, len(catalog.Currencies)),
		bySystem:  map[string]int{},
		bySymbol:  map[string]int{},
		byAddress: map[string]int{},
	}
	seenName := map[string]bool{}
	seenAddr := map[string]bool{}

	for i, c := range catalog.Currencies {
		if v, ok := overrides[c.SystemName]; ok {
			c.Enabled = v
		}

		if c.SystemName == "" {
			return nil, domain.ConfigurationError(op, "entry %d has no system name", i)
		}
		if seenName[c.SystemName] {
			return nil, domain.ConfigurationError(op, "duplicate system name %q", c.SystemName)
		}
		if seenAddr[c.IAddress] {
			return nil, domain.ConfigurationError(op, "duplicate iAddress %s", c.IAddress)
		}
		if err := validateIAddress(c.IAddress); err != nil {
			return nil, domain.ConfigurationError(op, "%s: %v", c.SystemName, err)
		}
		if c.Decimals < 0 || c.Decimals > 18 {
			return nil, domain.ConfigurationError(op, "%s: decimals %d out of range", c.SystemName, c.Decimals)
		}
		seenName[c.SystemName] = true
		seenAddr[c.IAddress] = true
		idx.entries[i] = c

		if !c.Enabled {
			continue
		}
		idx.bySystem[c.SystemName] = i
		idx.byAddress[c.IAddress] = i
		if prev, dup := idx.bySymbol[c.TradingSymbol]; dup {
			// First enabled entry in catalog order keeps the symbol.
			slog.Warn("Trading symbol shared by enabled currencies",
				slog.String("symbol", c.TradingSymbol),
				slog.String("kept", idx.entries[prev].SystemName),
				slog.String("shadowed", c.SystemName))
			continue
		}
		idx.bySymbol[c.TradingSymbol] = i
	}

	if catalog.DefaultFrom != "" && !seenName[catalog.DefaultFrom] {
		return nil, domain.ConfigurationError(op, "default_from %q is not in the catalog", catalog.DefaultFrom)
	}
	return idx, nil
}

func validateIAddress(s string) error {
	if s == "" {
		return fmt.Errorf("missing iAddress")
	}
	_, version, err := base58.CheckDecode(s)
	if err != nil {
		return fmt.Errorf("iAddress %s: %w", s, err)
	}
	if version != identityAddressVersion {
		return fmt.Errorf("iAddress %s has version %d", s, version)
	}
	return nil
}
