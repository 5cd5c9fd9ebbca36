package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/queue"
)

const schema = `
CREATE TABLE IF NOT EXISTS feed_errors (
	id          UUID PRIMARY KEY,
	venue       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	stream      BOOLEAN NOT NULL,
	symbol      TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS feed_errors_venue_time_idx ON feed_errors (venue, occurred_at DESC);
`

const insertSQL = `
	INSERT INTO feed_errors (id, venue, kind, stream, symbol, message, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the journal uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Event is one feed_errors row.
type Event struct {
	ID         uuid.UUID
	Venue      model.Venue
	Kind       string
	Stream     bool
	Symbol     string
	Message    string
	OccurredAt time.Time
}

// Config holds journal configuration.
type Config struct {
	BatchSize     int           // Rows per insert batch (default: 100)
	FlushInterval time.Duration // Max time a row waits in the buffer (default: 2s)
	BufferSize    int           // Buffered rows before the oldest are dropped (default: 1000)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
		BufferSize:    1000,
	}
}

// Stats is a snapshot of journal counters.
type Stats struct {
	Buffered int   `json:"buffered"`
	Dropped  int64 `json:"dropped"`
	Inserted int64 `json:"inserted"`
	Flushes  int64 `json:"flushes"`
	Errors   int64 `json:"errors"`
}

// Journal batches feed-health events into PostgreSQL.
type Journal struct {
	cfg    Config
	db     DB
	logger *slog.Logger
	now    func() time.Time

	input *queue.Ring[Event]
	kick  chan struct{}

	flushMu sync.Mutex // serializes flushes

	cancel context.CancelFunc
	wg     sync.WaitGroup

	inserted atomic.Int64
	flushes  atomic.Int64
	errors   atomic.Int64
}

// New creates a journal writing to db.
func New(cfg Config, db DB, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}

	return &Journal{
		cfg:    cfg,
		db:     db,
		logger: logger,
		now:    time.Now,
		input:  queue.New[Event](min(cfg.BatchSize, cfg.BufferSize), cfg.BufferSize),
		kick:   make(chan struct{}, 1),
	}
}

// Migrate creates the feed_errors table if needed.
func (j *Journal) Migrate(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create feed_errors: %w", err)
	}
	return nil
}

// Record buffers one adapter error. It never blocks.
func (j *Journal) Record(err error, venue model.Venue, stream bool) {
	if err == nil {
		return
	}

	ev := Event{
		ID:         uuid.New(),
		Venue:      venue,
		Kind:       exchange.KindOf(err).String(),
		Stream:     stream,
		Message:    err.Error(),
		OccurredAt: j.now().UTC(),
	}
	var e *exchange.Error
	if errors.As(err, &e) {
		ev.Symbol = e.Symbol
	}

	if !j.input.Send(ev) {
		return
	}
	if j.input.Len() >= j.cfg.BatchSize {
		select {
		case j.kick <- struct{}{}:
		default:
		}
	}
}

// Start begins flushing in the background.
func (j *Journal) Start(ctx context.Context) error {
	ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.flushLoop(ctx)

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop halts the flush loop and writes whatever is still buffered.
func (j *Journal) Stop(ctx context.Context) error {
	j.logger.Info("stopping journal")

	if j.cancel != nil {
		j.cancel()
	}
	j.input.Close()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
		return ctx.Err()
	}

	j.flushAll(ctx)
	j.logger.Info("journal stopped")
	return nil
}

// Stats returns current counters.
func (j *Journal) Stats() Stats {
	rs := j.input.Stats()
	return Stats{
		Buffered: rs.Count,
		Dropped:  rs.Dropped,
		Inserted: j.inserted.Load(),
		Flushes:  j.flushes.Load(),
		Errors:   j.errors.Load(),
	}
}

func (j *Journal) flushLoop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.flushAll(ctx)
		case <-j.kick:
			j.flushAll(ctx)
		}
	}
}

// flushAll drains the buffer in BatchSize chunks.
func (j *Journal) flushAll(ctx context.Context) {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	for {
		rows := j.input.DrainTo(j.cfg.BatchSize)
		if len(rows) == 0 {
			return
		}
		if err := j.flush(ctx, rows); err != nil {
			return
		}
	}
}

func (j *Journal) flush(ctx context.Context, rows []Event) error {
	start := time.Now()

	inserted, err := j.batchInsert(ctx, rows)
	if err != nil {
		j.errors.Add(1)
		j.logger.Error("journal batch insert failed", "error", err, "count", len(rows))
		return err
	}

	j.inserted.Add(int64(inserted))
	j.flushes.Add(1)
	j.logger.Debug("flushed feed errors",
		"count", len(rows),
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert writes rows with one pgx.Batch round trip.
func (j *Journal) batchInsert(ctx context.Context, rows []Event) (inserted int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.ID, string(r.Venue), r.Kind, r.Stream, r.Symbol, r.Message, r.OccurredAt)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}
