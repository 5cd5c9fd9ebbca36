package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrWaitExceeded is returned by Wait when tokens cannot be acquired within
// the configured maximum wait.
var ErrWaitExceeded = errors.New("rate limit wait exceeded")

// Config describes one bucket.
type Config struct {
	Capacity       int           // Maximum tokens (burst size)
	RefillInterval time.Duration // Time to refill from empty to full
	MaxWait        time.Duration // Upper bound on total time spent in Wait (0 = DefaultMaxWait)
}

// DefaultMaxWait bounds Wait when Config.MaxWait is zero.
const DefaultMaxWait = 30 * time.Second

// Option configures a Bucket.
type Option func(*Bucket)

// WithInitialTokens starts the bucket with n tokens instead of full.
func WithInitialTokens(n int) Option {
	return func(b *Bucket) {
		b.tokens = max(0, min(n, b.capacity))
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		b.now = now
		b.last = now()
	}
}

// WithSleep replaces the function Wait uses to suspend.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bucket) {
		b.sleep = sleep
	}
}

// Bucket is a token bucket with lazy whole-token refill.
type Bucket struct {
	mu       sync.Mutex
	capacity int
	refill   time.Duration
	maxWait  time.Duration
	tokens   int
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a full bucket.
func New(cfg Config, opts ...Option) (*Bucket, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be >= 1, got %d", cfg.Capacity)
	}
	if cfg.RefillInterval <= 0 {
		return nil, fmt.Errorf("refill interval must be > 0, got %v", cfg.RefillInterval)
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}

	b := &Bucket{
		capacity: cfg.Capacity,
		refill:   cfg.RefillInterval,
		maxWait:  cfg.MaxWait,
		tokens:   cfg.Capacity,
		now:      time.Now,
		sleep:    sleepContext,
	}
	b.last = b.now()

	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// TryConsume takes n tokens if available. It never blocks.
func (b *Bucket) TryConsume(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if n > b.tokens {
		return false
	}
	b.tokens -= n
	return true
}

// WaitTime returns how long until n tokens are available, rounded up to the
// millisecond. Zero means a TryConsume(n) would succeed now.
func (b *Bucket) WaitTime(n int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if n <= b.tokens {
		return 0
	}

	deficit := int64(n - b.tokens)
	ns := (deficit*int64(b.refill) + int64(b.capacity) - 1) / int64(b.capacity)
	d := time.Duration(ns)
	if rem := d % time.Millisecond; rem != 0 {
		d += time.Millisecond - rem
	}
	return d
}

// Wait blocks until n tokens are consumed, the context is cancelled, or the
// total wait would exceed the bucket's MaxWait.
func (b *Bucket) Wait(ctx context.Context, n int) error {
	if n > b.capacity {
		return fmt.Errorf("%w: %d tokens requested, capacity %d", ErrWaitExceeded, n, b.capacity)
	}

	var waited time.Duration
	for {
		if b.TryConsume(n) {
			return nil
		}

		d := b.WaitTime(n)
		if d == 0 {
			// Refill raced with another consumer; try again.
			d = time.Millisecond
		}
		if waited+d > b.maxWait {
			return fmt.Errorf("%w: waited %v, need %v more", ErrWaitExceeded, waited, d)
		}

		if err := b.sleep(ctx, d); err != nil {
			return err
		}
		waited += d
	}
}

// Tokens returns the current token count after refill.
func (b *Bucket) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	return b.tokens
}

// Capacity returns the bucket capacity.
func (b *Bucket) Capacity() int {
	return b.capacity
}

// refillLocked credits whole tokens for the elapsed time. The refill clock
// only advances by the time that produced those tokens so fractional
// progress is kept. Must be called with lock held.
func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	if elapsed >= b.refill {
		b.tokens = b.capacity
		b.last = now
		return
	}

	add := int64(b.capacity) * int64(elapsed) / int64(b.refill)
	if add <= 0 {
		return
	}

	if int64(b.tokens)+add >= int64(b.capacity) {
		b.tokens = b.capacity
		b.last = now
		return
	}

	b.tokens += int(add)
	b.last = b.last.Add(time.Duration(add * int64(b.refill) / int64(b.capacity)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
