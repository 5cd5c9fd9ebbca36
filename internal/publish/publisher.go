package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/queue"
)

// Config holds publisher configuration.
type Config struct {
	TTL          time.Duration // Lifetime of latest:<venue>:<symbol> (default: 30s)
	BufferSize   int           // Quotes buffered before the oldest are dropped (default: 1000)
	WriteTimeout time.Duration // Per-quote Redis timeout (default: 2s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:          30 * time.Second,
		BufferSize:   1000,
		WriteTimeout: 2 * time.Second,
	}
}

// Stats is a snapshot of publisher counters.
type Stats struct {
	Buffered  int   `json:"buffered"`
	Dropped   int64 `json:"dropped"`
	Published int64 `json:"published"`
	Errors    int64 `json:"errors"`
}

// LatestKey is the cache key for a venue/symbol.
func LatestKey(venue model.Venue, symbol string) string {
	return fmt.Sprintf("latest:%s:%s", venue, symbol)
}

// Channel is the pub/sub channel for a venue/symbol.
func Channel(venue model.Venue, symbol string) string {
	return fmt.Sprintf("quotes:%s:%s", venue, symbol)
}

// Publisher drains quotes from a bounded buffer into a Store.
type Publisher struct {
	cfg    Config
	store  Store
	logger *slog.Logger

	input *queue.Ring[model.Quote]
	wg    sync.WaitGroup

	published atomic.Int64
	errors    atomic.Int64
}

// New creates a publisher writing to store.
func New(cfg Config, store Store, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	return &Publisher{
		cfg:    cfg,
		store:  store,
		logger: logger,
		input:  queue.New[model.Quote](min(64, cfg.BufferSize), cfg.BufferSize),
	}
}

// Publish enqueues q. It never blocks; register it with the manager's
// OnPriceUpdate.
func (p *Publisher) Publish(q model.Quote) {
	p.input.Send(q)
}

// Start begins writing in the background until Stop or ctx is done.
func (p *Publisher) Start(ctx context.Context) error {
	p.wg.Add(1)
	go p.run(ctx)

	go func() {
		<-ctx.Done()
		p.input.Close()
	}()

	p.logger.Info("publisher started", "ttl", p.cfg.TTL, "buffer_size", p.cfg.BufferSize)
	return nil
}

// Stop closes the buffer and waits for queued quotes to be written.
func (p *Publisher) Stop(ctx context.Context) error {
	p.input.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("publisher stopped", "published", p.published.Load())
		return nil
	case <-ctx.Done():
		p.logger.Warn("publisher stop timed out", "buffered", p.input.Len())
		return ctx.Err()
	}
}

// Latest reads the cached quote for venue/symbol.
func (p *Publisher) Latest(ctx context.Context, venue model.Venue, symbol string) (model.Quote, error) {
	var q model.Quote
	b, err := p.store.Get(ctx, LatestKey(venue, symbol))
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal(b, &q); err != nil {
		return q, fmt.Errorf("decode cached quote: %w", err)
	}
	return q, nil
}

// Stats returns current counters.
func (p *Publisher) Stats() Stats {
	rs := p.input.Stats()
	return Stats{
		Buffered:  rs.Count,
		Dropped:   rs.Dropped,
		Published: p.published.Load(),
		Errors:    p.errors.Load(),
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		q, ok := p.input.Receive()
		if !ok {
			return
		}
		p.write(context.WithoutCancel(ctx), q)
	}
}

func (p *Publisher) write(ctx context.Context, q model.Quote) {
	payload, err := json.Marshal(q)
	if err != nil {
		p.errors.Add(1)
		p.logger.Error("encode quote failed", "venue", q.Exchange, "symbol", q.Symbol, "error", err)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, p.cfg.WriteTimeout)
	defer cancel()

	if err := p.store.Write(wctx, LatestKey(q.Exchange, q.Symbol), Channel(q.Exchange, q.Symbol), payload, p.cfg.TTL); err != nil {
		p.errors.Add(1)
		p.logger.Warn("publish quote failed", "venue", q.Exchange, "symbol", q.Symbol, "error", err)
		return
	}
	p.published.Add(1)
}
