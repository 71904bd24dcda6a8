// Package ephemeral provides a concurrency-safe, in-process map from opaque
// keys to timestamped values. Sessions, verification codes and rate counters
// are all kept in one of these; nothing here survives a restart.
package ephemeral

import (
	"fmt"
	"sync"
	"time"

	"github.com/duynhne/flow-auth/internal/core/domain"
)

// Entry is a stored value together with the time it was written.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

// Decision tells Update what to do with the entry once fn returns.
type Decision uint8

const (
	// Keep leaves the entry in place, including any in-place changes to Value.
	Keep Decision = iota
	// Delete removes the entry.
	Delete
	// Replace stores the returned value with a fresh timestamp.
	Replace
)

// Store is a mutex-guarded map[string]Entry[V]. Every method holds the lock
// for its whole duration, so no partial write is ever observable.
type Store[V any] struct {
	mu      sync.Mutex
	entries map[string]*Entry[V]
	now     func() time.Time
}

// Option configures a Store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for StoredAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates an empty Store.
func New[V any](opts ...Option) *Store[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[V]{
		entries: make(map[string]*Entry[V]),
		now:     o.now,
	}
}

// Put inserts or overwrites key and returns the recorded time.
func (s *Store[V]) Put(key string, value V) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	s.entries[key] = &Entry[V]{Value: value, StoredAt: at}
	return at
}

// Get returns a copy of the entry for key. Freshness is the caller's call.
func (s *Store[V]) Get(key string) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	return *e, true
}

// Remove deletes key and returns the value it held.
func (s *Store[V]) Remove(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(s.entries, key)
	return e.Value, true
}

// ForEach calls fn for every entry while holding the lock. fn may modify
// the value in place but must not call back into the store.
func (s *Store[V]) ForEach(fn func(key string, value *V)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		fn(k, &e.Value)
	}
}

// Update runs fn on the entry for key with exclusive access. e is nil when
// key is absent; Keep on a nil entry is a no-op. next is only used for
// Replace. A panic in fn is recovered and reported as domain.ErrInternal,
// leaving the store unchanged.
func (s *Store[V]) Update(key string, fn func(e *Entry[V]) (next V, d Decision)) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ephemeral update %q: panic: %v: %w", key, r, domain.ErrInternal)
		}
	}()

	var cur *Entry[V]
	if e, ok := s.entries[key]; ok {
		// fn works on a copy so a panic halfway through leaves no trace.
		c := *e
		cur = &c
	}

	next, d := fn(cur)

	switch d {
	case Keep:
		if cur != nil {
			s.entries[key] = cur
		}
	case Delete:
		delete(s.entries, key)
	case Replace:
		s.entries[key] = &Entry[V]{Value: next, StoredAt: s.now()}
	}
	return nil
}

// Len returns the number of stored entries.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Now returns the store's current time.
func (s *Store[V]) Now() time.Time {
	return s.now()
}
