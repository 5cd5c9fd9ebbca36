package poller

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// FetchFunc fetches and delivers one symbol's quote over REST.
type FetchFunc func(ctx context.Context, symbol string) error

// LastSeenFunc returns when the stream last delivered the symbol, or the
// zero time if it never has.
type LastSeenFunc func(symbol string) time.Time

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval per symbol (default: 15s)
	Freshness   time.Duration // Skip the poll if the stream updated within this window (default: 10s)
	Timeout     time.Duration // Per-request timeout (default: 10s)
	Concurrency int           // Max concurrent requests across symbols (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Second,
		Freshness:   10 * time.Second,
		Timeout:     10 * time.Second,
		Concurrency: 4,
	}
}

// Stats is a snapshot of poller counters.
type Stats struct {
	Symbols int
	Polled  int64
	Skipped int64
	Errors  int64
}

// Poller runs one REST polling loop per symbol as a backstop for a
// silent stream.
type Poller struct {
	cfg      Config
	fetch    FetchFunc
	lastSeen LastSeenFunc
	logger   *slog.Logger
	sem      *semaphore.Weighted
	now      func() time.Time

	mu    sync.Mutex
	loops map[string]context.CancelFunc
	wg    sync.WaitGroup

	polled  atomic.Int64
	skipped atomic.Int64
	errors  atomic.Int64
}

// New creates a new Poller. lastSeen may be nil, in which case every tick polls.
func New(cfg Config, fetch FetchFunc, lastSeen LastSeenFunc, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if lastSeen == nil {
		lastSeen = func(string) time.Time { return time.Time{} }
	}

	return &Poller{
		cfg:      cfg,
		fetch:    fetch,
		lastSeen: lastSeen,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		now:      time.Now,
		loops:    make(map[string]context.CancelFunc),
	}
}

// Add starts polling symbol. It returns false if the symbol is already polled.
func (p *Poller) Add(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.loops[symbol]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.loops[symbol] = cancel

	p.wg.Add(1)
	go p.run(ctx, symbol)

	p.logger.Debug("rest fallback started", "symbol", symbol, "interval", p.cfg.Interval)
	return true
}

// Remove stops polling symbol.
func (p *Poller) Remove(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cancel, ok := p.loops[symbol]
	if !ok {
		return false
	}
	cancel()
	delete(p.loops, symbol)
	return true
}

// Symbols returns the polled symbols, sorted.
func (p *Poller) Symbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	symbols := make([]string, 0, len(p.loops))
	for s := range p.loops {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// Stop cancels every loop and waits for them to exit. The poller can be
// reused afterwards.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	for symbol, cancel := range p.loops {
		cancel()
		delete(p.loops, symbol)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	n := len(p.loops)
	p.mu.Unlock()

	return Stats{
		Symbols: n,
		Polled:  p.polled.Load(),
		Skipped: p.skipped.Load(),
		Errors:  p.errors.Load(),
	}
}

// run is the polling loop for one symbol.
func (p *Poller) run(ctx context.Context, symbol string) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, symbol)
		}
	}
}

// pollOnce fetches the symbol unless the stream is fresh.
func (p *Poller) pollOnce(ctx context.Context, symbol string) {
	if last := p.lastSeen(symbol); !last.IsZero() && p.now().Sub(last) < p.cfg.Freshness {
		p.skipped.Add(1)
		return
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)

	fctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.fetch(fctx, symbol); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.errors.Add(1)
		p.logger.Warn("rest fallback poll failed",
			"symbol", symbol,
			"err", err,
		)
		return
	}

	p.polled.Add(1)
}
