package exchange

import (
	"context"
	"time"

	"github.com/rickgao/arb-feed/internal/api"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/ratelimit"
)

// Tick is one top-of-book observation in venue-native form.
type Tick struct {
	Native    string
	Bid       float64
	Ask       float64
	Timestamp int64 // Venue event time in ms, 0 if the venue sent none
	Volume24h *float64
}

// SymbolInfo describes one tradable spot pair from a venue catalog.
type SymbolInfo struct {
	Native string
	Base   string
	Quote  string
	Active bool
}

// Defaults are the per-venue settings used when Config leaves them unset.
type Defaults struct {
	RestURL           string
	WSURL             string
	APIKeyHeader      string
	PollInterval      time.Duration
	KeepaliveInterval time.Duration
	RateLimits        map[string]ratelimit.Config
}

// Protocol is the venue-specific half of an adapter: wire formats, symbol
// spelling, and REST endpoints. The Adapter supplies everything else.
type Protocol interface {
	Venue() model.Venue
	Defaults() Defaults

	// NormalizeSymbol converts a venue-native symbol to canonical form.
	NormalizeSymbol(native string) string
	// DenormalizeSymbol converts a canonical symbol to venue-native form.
	DenormalizeSymbol(symbol string) string

	SubscribeMessage(native string) ([]byte, error)
	UnsubscribeMessage(native string) ([]byte, error)

	// HandleMessage decodes one inbound frame. Control frames (pongs,
	// acknowledgements) return no ticks and no error.
	HandleMessage(data []byte) ([]Tick, error)

	// Keepalive returns the application-level ping payload, or nil to use
	// protocol ping frames.
	Keepalive() []byte

	FetchTicker(ctx context.Context, rest *api.Client, native string) (Tick, error)
	ListSymbols(ctx context.Context, rest *api.Client) ([]SymbolInfo, error)
}
