package manager

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/observer"
)

// Adapter is the venue adapter surface the manager drives.
// *exchange.Adapter implements it.
type Adapter interface {
	Venue() model.Venue
	Connect(ctx context.Context) error
	Disconnect() error
	SubscribeToSymbol(ctx context.Context, symbol string) error
	UnsubscribeFromSymbol(ctx context.Context, symbol string) error
	SupportedSymbols(ctx context.Context) ([]string, error)
	OnPriceUpdate(fn func(model.Quote)) uuid.UUID
	OnError(fn func(error)) uuid.UUID
	RemoveObserver(id uuid.UUID) bool
	SetAutoReconnect(enabled bool)
	Status() exchange.Status
}

var _ Adapter = (*exchange.Adapter)(nil)

// Config holds manager configuration.
type Config struct {
	MaxUpdatesPerSecond int  // Per (venue, symbol) delivery bound (default: 10)
	AutoReconnect       bool // Applied to every registered adapter
	LogErrors           bool // Log every forwarded adapter error
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxUpdatesPerSecond: 10,
		AutoReconnect:       true,
		LogErrors:           true,
	}
}

// ErrorEvent is one adapter error as seen on the manager's error channel.
type ErrorEvent struct {
	Err    error
	Venue  model.Venue
	Stream bool
}

// Result is the per-venue outcome of a fan-out operation.
type Result struct {
	Venue model.Venue
	Err   error
}

// VenueStats is a per-venue snapshot.
type VenueStats struct {
	exchange.Status
	Emitted   int64  `json:"emitted"`
	Coalesced int64  `json:"coalesced"`
	Errors    int64  `json:"errors"`
	LastFault string `json:"last_fault,omitempty"`
}

type counters struct {
	received atomic.Int64
	emitted  atomic.Int64
	errors   atomic.Int64

	mu        sync.Mutex
	lastFault string
}

type registration struct {
	adapter Adapter
	priceID uuid.UUID
	errID   uuid.UUID
	stats   *counters
}

// Manager owns the adapter set and merges their quotes into one throttled
// stream.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	throttle *throttle
	prices   *observer.List[model.Quote]
	errs     *observer.List[ErrorEvent]

	mu       sync.RWMutex
	adapters map[model.Venue]*registration
}

// New creates a manager with no adapters.
func New(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUpdatesPerSecond <= 0 {
		cfg.MaxUpdatesPerSecond = DefaultConfig().MaxUpdatesPerSecond
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		prices:   observer.New[model.Quote]("manager prices", logger),
		errs:     observer.New[ErrorEvent]("manager errors", logger),
		adapters: make(map[model.Venue]*registration),
	}
	m.throttle = newThrottle(time.Second/time.Duration(cfg.MaxUpdatesPerSecond), m.emit)
	return m
}

// RegisterAdapter adds a, keyed by venue. A previously registered adapter
// for the same venue is detached and disconnected.
func (m *Manager) RegisterAdapter(a Adapter) {
	venue := a.Venue()
	reg := &registration{adapter: a, stats: &counters{}}

	a.SetAutoReconnect(m.cfg.AutoReconnect)
	reg.priceID = a.OnPriceUpdate(func(q model.Quote) { m.handleQuote(reg, q) })
	reg.errID = a.OnError(func(err error) { m.handleError(reg, venue, err) })

	m.mu.Lock()
	prev := m.adapters[venue]
	m.adapters[venue] = reg
	m.mu.Unlock()

	if prev != nil {
		m.detach(prev)
		m.throttle.cancelVenue(venue)
		m.logger.Info("adapter replaced", "venue", venue)
		return
	}
	m.logger.Info("adapter registered", "venue", venue)
}

// UnregisterAdapter detaches and disconnects the venue's adapter.
func (m *Manager) UnregisterAdapter(venue model.Venue) bool {
	m.mu.Lock()
	reg, ok := m.adapters[venue]
	delete(m.adapters, venue)
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.detach(reg)
	m.throttle.cancelVenue(venue)
	return true
}

func (m *Manager) detach(reg *registration) {
	reg.adapter.RemoveObserver(reg.priceID)
	reg.adapter.RemoveObserver(reg.errID)
	if err := reg.adapter.Disconnect(); err != nil {
		m.logger.Warn("detached adapter disconnect failed", "venue", reg.adapter.Venue(), "error", err)
	}
}

// Adapter returns the adapter registered for venue.
func (m *Manager) Adapter(venue model.Venue) (Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.adapters[venue]
	if !ok {
		return nil, false
	}
	return reg.adapter, true
}

// Venues returns the registered venues, sorted.
func (m *Manager) Venues() []model.Venue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Venue, 0, len(m.adapters))
	for v := range m.adapters {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ConnectAll connects every adapter concurrently and waits for all of them.
// Failures have already been reported on the error channel by the adapter.
func (m *Manager) ConnectAll(ctx context.Context) []Result {
	return m.each(func(a Adapter) error { return a.Connect(ctx) }, "connect")
}

// DisconnectAll disconnects every adapter and cancels all throttle timers.
func (m *Manager) DisconnectAll() []Result {
	results := m.each(func(a Adapter) error { return a.Disconnect() }, "disconnect")
	m.throttle.cancelAll()
	return results
}

// SubscribeToSymbol subscribes symbol on every adapter. One venue failing
// does not affect the others.
func (m *Manager) SubscribeToSymbol(ctx context.Context, symbol string) []Result {
	return m.each(func(a Adapter) error { return a.SubscribeToSymbol(ctx, symbol) }, "subscribe")
}

// SubscribeToSymbols subscribes every symbol on every adapter. Each venue
// processes its symbols in order; per-symbol errors are joined.
func (m *Manager) SubscribeToSymbols(ctx context.Context, symbols []string) []Result {
	return m.each(func(a Adapter) error {
		var errs []error
		for _, s := range symbols {
			if err := a.SubscribeToSymbol(ctx, s); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, "subscribe")
}

// UnsubscribeFromSymbol unsubscribes symbol everywhere and cancels its
// throttle timers.
func (m *Manager) UnsubscribeFromSymbol(ctx context.Context, symbol string) []Result {
	results := m.each(func(a Adapter) error { return a.UnsubscribeFromSymbol(ctx, symbol) }, "unsubscribe")
	m.throttle.cancelSymbol(model.NormalizeSymbol(symbol))
	return results
}

// GetCommonSymbols returns the symbols every venue supports. Venues whose
// list fails to load or is empty are left out of the intersection.
func (m *Manager) GetCommonSymbols(ctx context.Context) ([]string, error) {
	regs := m.registrations()
	lists := make([][]string, len(regs))

	var g errgroup.Group
	for i, reg := range regs {
		g.Go(func() error {
			symbols, err := reg.adapter.SupportedSymbols(ctx)
			if err != nil {
				m.logger.Warn("supported symbols unavailable",
					"venue", reg.adapter.Venue(),
					"error", err,
				)
				return nil
			}
			lists[i] = symbols
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var common map[string]struct{}
	for _, list := range lists {
		if len(list) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(list))
		for _, s := range list {
			if common == nil {
				set[s] = struct{}{}
			} else if _, ok := common[s]; ok {
				set[s] = struct{}{}
			}
		}
		common = set
	}

	out := make([]string, 0, len(common))
	for s := range common {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// OnPriceUpdate registers fn for every throttled quote.
func (m *Manager) OnPriceUpdate(fn func(model.Quote)) uuid.UUID {
	return m.prices.Add(fn)
}

// OnError registers fn for every adapter error.
func (m *Manager) OnError(fn func(err error, venue model.Venue, stream bool)) uuid.UUID {
	return m.errs.Add(func(ev ErrorEvent) { fn(ev.Err, ev.Venue, ev.Stream) })
}

// RemoveObserver unregisters a price or error observer.
func (m *Manager) RemoveObserver(id uuid.UUID) bool {
	return m.prices.Remove(id) || m.errs.Remove(id)
}

// Stats returns a per-venue snapshot, sorted by venue.
func (m *Manager) Stats() []VenueStats {
	regs := m.registrations()
	out := make([]VenueStats, 0, len(regs))

	for _, reg := range regs {
		reg.stats.mu.Lock()
		fault := reg.stats.lastFault
		reg.stats.mu.Unlock()

		received := reg.stats.received.Load()
		emitted := reg.stats.emitted.Load()
		out = append(out, VenueStats{
			Status:    reg.adapter.Status(),
			Emitted:   emitted,
			Coalesced: max(received-emitted, 0),
			Errors:    reg.stats.errors.Load(),
			LastFault: fault,
		})
	}
	return out
}

func (m *Manager) handleQuote(reg *registration, q model.Quote) {
	reg.stats.received.Add(1)
	m.throttle.offer(q)
}

// emit is the throttle's output.
func (m *Manager) emit(q model.Quote) {
	m.mu.RLock()
	reg := m.adapters[q.Exchange]
	m.mu.RUnlock()
	if reg != nil {
		reg.stats.emitted.Add(1)
	}
	m.prices.Notify(q)
}

func (m *Manager) handleError(reg *registration, venue model.Venue, err error) {
	reg.stats.errors.Add(1)
	reg.stats.mu.Lock()
	reg.stats.lastFault = err.Error()
	reg.stats.mu.Unlock()

	var e *exchange.Error
	stream := errors.As(err, &e) && e.Stream

	if m.cfg.LogErrors {
		m.logger.Warn("adapter error",
			"venue", venue,
			"kind", exchange.KindOf(err).String(),
			"stream", stream,
			"error", err,
		)
	}

	m.errs.Notify(ErrorEvent{Err: err, Venue: venue, Stream: stream})
}

// each runs fn on every adapter concurrently and collects per-venue results.
func (m *Manager) each(fn func(Adapter) error, op string) []Result {
	regs := m.registrations()
	results := make([]Result, len(regs))

	var g errgroup.Group
	for i, reg := range regs {
		g.Go(func() error {
			err := fn(reg.adapter)
			results[i] = Result{Venue: reg.adapter.Venue(), Err: err}
			if err != nil {
				m.logger.Warn(op+" failed", "venue", reg.adapter.Venue(), "error", err)
			}
			return nil
		})
	}
	g.Wait()

	return results
}

func (m *Manager) registrations() []*registration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*registration, 0, len(m.adapters))
	for _, reg := range m.adapters {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].adapter.Venue() < out[j].adapter.Venue() })
	return out
}
