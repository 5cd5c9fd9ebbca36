// Package observer holds callback registries with removable handles.
//
// Every callback runs in isolation: a panic is recovered and logged and the
// remaining callbacks still receive the value.
package observer

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type entry[T any] struct {
	id uuid.UUID
	fn func(T)
}

// List is a concurrency-safe set of callbacks for values of type T.
type List[T any] struct {
	name   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries []entry[T]
}

// New creates an empty list. name identifies the list in panic logs.
func New[T any](name string, logger *slog.Logger) *List[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &List[T]{name: name, logger: logger}
}

// Add registers fn and returns a handle for Remove.
func (l *List[T]) Add(fn func(T)) uuid.UUID {
	id := uuid.New()

	l.mu.Lock()
	l.entries = append(l.entries, entry[T]{id: id, fn: fn})
	l.mu.Unlock()

	return id
}

// Remove unregisters the callback with the given handle.
func (l *List[T]) Remove(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered callbacks.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Notify calls every registered callback with v, in registration order.
// Callbacks run on the caller's goroutine without the list lock held.
func (l *List[T]) Notify(v T) {
	l.mu.RLock()
	snapshot := l.entries
	l.mu.RUnlock()

	for _, e := range snapshot {
		l.call(e, v)
	}
}

func (l *List[T]) call(e entry[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("observer panicked",
				"list", l.name,
				"observer", e.id,
				"panic", r,
			)
		}
	}()
	e.fn(v)
}
