package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoller_PollOnceFetches(t *testing.T) {
	var calls atomic.Int32
	fetch := func(ctx context.Context, symbol string) error {
		if symbol != "BTC-USDT" {
			t.Errorf("symbol = %q, want BTC-USDT", symbol)
		}
		if _, ok := ctx.Deadline(); !ok {
			t.Error("fetch context has no deadline")
		}
		calls.Add(1)
		return nil
	}

	p := New(Config{Interval: time.Hour, Timeout: time.Second}, fetch, nil, nil)
	p.pollOnce(context.Background(), "BTC-USDT")

	if calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", calls.Load())
	}
	if s := p.Stats(); s.Polled != 1 || s.Errors != 0 {
		t.Errorf("Stats() = %+v, want Polled=1 Errors=0", s)
	}
}

func TestPoller_SkipsWhenStreamFresh(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastSeen  time.Time
		wantCalls int32
	}{
		{"never seen", time.Time{}, 1},
		{"fresh", now.Add(-3 * time.Second), 0},
		{"stale", now.Add(-30 * time.Second), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			fetch := func(context.Context, string) error {
				calls.Add(1)
				return nil
			}
			lastSeen := func(string) time.Time { return tt.lastSeen }

			p := New(Config{Interval: time.Hour, Freshness: 10 * time.Second}, fetch, lastSeen, nil)
			p.now = func() time.Time { return now }
			p.pollOnce(context.Background(), "ETH-USDT")

			if calls.Load() != tt.wantCalls {
				t.Errorf("fetch calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestPoller_CountsErrors(t *testing.T) {
	fetch := func(context.Context, string) error { return errors.New("boom") }

	p := New(Config{Interval: time.Hour}, fetch, nil, nil)
	p.pollOnce(context.Background(), "BTC-USDT")
	p.pollOnce(context.Background(), "BTC-USDT")

	if s := p.Stats(); s.Errors != 2 || s.Polled != 0 {
		t.Errorf("Stats() = %+v, want Errors=2 Polled=0", s)
	}
}

func TestPoller_AddRemoveStop(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context, string) error {
		calls.Add(1)
		return nil
	}

	p := New(Config{Interval: 20 * time.Millisecond}, fetch, nil, nil)

	if !p.Add("BTC-USDT") {
		t.Fatal("Add returned false for new symbol")
	}
	if p.Add("BTC-USDT") {
		t.Error("Add returned true for duplicate symbol")
	}
	p.Add("ETH-USDT")

	got := p.Symbols()
	if len(got) != 2 || got[0] != "BTC-USDT" || got[1] != "ETH-USDT" {
		t.Errorf("Symbols() = %v, want [BTC-USDT ETH-USDT]", got)
	}

	if !p.Remove("ETH-USDT") {
		t.Error("Remove returned false for polled symbol")
	}
	if p.Remove("ETH-USDT") {
		t.Error("second Remove returned true")
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatalf("fetch calls = %d, want at least 2", calls.Load())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	after := calls.Load()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != after {
		t.Errorf("fetch called after Stop: %d -> %d", after, calls.Load())
	}
	if n := len(p.Symbols()); n != 0 {
		t.Errorf("Symbols() after Stop has %d entries, want 0", n)
	}

	// Reusable after Stop.
	if !p.Add("BTC-USDT") {
		t.Error("Add after Stop returned false")
	}
	_ = p.Stop(ctx)
}
