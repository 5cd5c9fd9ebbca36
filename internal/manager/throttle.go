package manager

import (
	"sync"
	"time"

	"github.com/rickgao/arb-feed/internal/model"
)

type throttleKey struct {
	venue  model.Venue
	symbol string
}

type throttleEntry struct {
	latest  model.Quote
	pending int
	timer   *time.Timer
}

// throttle bounds delivery per (venue, symbol) to one quote per period.
//
// The first quote after an idle period is emitted at once and arms a timer.
// Quotes arriving before the timer fires overwrite a single latest slot.
// When the timer fires, the latest quote is emitted and the timer re-armed
// if anything arrived; otherwise the entry is dropped and the key is idle
// again. The last quote of a burst is therefore always delivered.
type throttle struct {
	period time.Duration
	emit   func(model.Quote)

	mu      sync.Mutex
	entries map[throttleKey]*throttleEntry
}

func newThrottle(period time.Duration, emit func(model.Quote)) *throttle {
	return &throttle{
		period:  period,
		emit:    emit,
		entries: make(map[throttleKey]*throttleEntry),
	}
}

// offer submits q. It reports whether q was emitted immediately.
func (t *throttle) offer(q model.Quote) bool {
	key := throttleKey{venue: q.Exchange, symbol: q.Symbol}

	t.mu.Lock()
	if e, ok := t.entries[key]; ok {
		e.latest = q
		e.pending++
		t.mu.Unlock()
		return false
	}

	e := &throttleEntry{}
	e.timer = time.AfterFunc(t.period, func() { t.fire(key, e) })
	t.entries[key] = e
	t.mu.Unlock()

	t.emit(q)
	return true
}

func (t *throttle) fire(key throttleKey, e *throttleEntry) {
	t.mu.Lock()
	if t.entries[key] != e {
		// cancelled
		t.mu.Unlock()
		return
	}
	if e.pending == 0 {
		delete(t.entries, key)
		t.mu.Unlock()
		return
	}

	q := e.latest
	e.pending = 0
	e.latest = model.Quote{}
	e.timer.Reset(t.period)
	t.mu.Unlock()

	t.emit(q)
}

// cancelSymbol drops every entry for symbol, discarding pending quotes.
func (t *throttle) cancelSymbol(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, e := range t.entries {
		if key.symbol == symbol {
			e.timer.Stop()
			delete(t.entries, key)
		}
	}
}

// cancelVenue drops every entry for venue.
func (t *throttle) cancelVenue(venue model.Venue) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, e := range t.entries {
		if key.venue == venue {
			e.timer.Stop()
			delete(t.entries, key)
		}
	}
}

// cancelAll drops every entry.
func (t *throttle) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
}

// size returns the number of active keys.
func (t *throttle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
