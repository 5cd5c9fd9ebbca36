package exchange

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/arb-feed/internal/model"
)

// catalog caches a venue's tradable symbols and the native<->canonical
// mapping derived from them. Concurrent loads share one request.
type catalog struct {
	ttl  time.Duration
	load func(ctx context.Context) ([]SymbolInfo, error)
	norm func(native string) string
	now  func() time.Time

	group singleflight.Group

	mu          sync.RWMutex
	loadedAt    time.Time
	symbols     []string
	toNative    map[string]string
	toCanonical map[string]string
}

func newCatalog(ttl time.Duration, load func(context.Context) ([]SymbolInfo, error), norm func(string) string) *catalog {
	return &catalog{
		ttl:  ttl,
		load: load,
		norm: norm,
		now:  time.Now,
	}
}

// Symbols returns the canonical active symbols, loading them when the
// cache is empty or expired. A failed refresh serves the stale list if
// there is one.
func (c *catalog) Symbols(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	fresh := !c.loadedAt.IsZero() && (c.ttl <= 0 || c.now().Sub(c.loadedAt) < c.ttl)
	if fresh {
		out := append([]string(nil), c.symbols...)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	_, err, _ := c.group.Do("symbols", func() (any, error) {
		infos, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(infos)
		return nil, nil
	})

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err != nil && c.loadedAt.IsZero() {
		return nil, err
	}
	return append([]string(nil), c.symbols...), nil
}

func (c *catalog) store(infos []SymbolInfo) {
	toNative := make(map[string]string, len(infos))
	toCanonical := make(map[string]string, len(infos))
	symbols := make([]string, 0, len(infos))

	for _, info := range infos {
		canonical := c.norm(info.Native)
		if info.Base != "" && info.Quote != "" {
			canonical = model.Canonical(info.Base, info.Quote)
		}
		toCanonical[info.Native] = canonical
		if !info.Active {
			continue
		}
		if _, dup := toNative[canonical]; dup {
			continue
		}
		toNative[canonical] = info.Native
		symbols = append(symbols, canonical)
	}
	sort.Strings(symbols)

	c.mu.Lock()
	c.symbols = symbols
	c.toNative = toNative
	c.toCanonical = toCanonical
	c.loadedAt = c.now()
	c.mu.Unlock()
}

// Native returns the venue spelling of a canonical symbol if the catalog
// knows it.
func (c *catalog) Native(symbol string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.toNative[symbol]
	return n, ok
}

// Canonical returns the canonical spelling of a native symbol if the
// catalog knows it.
func (c *catalog) Canonical(native string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.toCanonical[native]
	return s, ok
}
