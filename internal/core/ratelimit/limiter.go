// Package ratelimit implements a fixed-window request counter per identity.
//
// Counters only go up between resets; a background janitor zeroes all of them
// every window. A fixed window keeps memory at one int per identity, at the
// price of allowing a burst of up to twice the limit across a window edge.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duynhne/flow-auth/internal/core/ephemeral"
)

// Defaults for Limiter.
const (
	DefaultLimit  = 1000
	DefaultWindow = time.Hour
)

// Limiter counts requests per identity.
type Limiter struct {
	counters *ephemeral.Store[int]
	limit    int
	window   time.Duration
	logger   zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimit sets the number of allowed requests per window.
func WithLimit(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithWindow sets the reset interval used by Start.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithLogger sets the logger used by the janitor.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a Limiter with its own counter store.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		counters: ephemeral.New[int](),
		limit:    DefaultLimit,
		window:   DefaultWindow,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the per-window request budget.
func (l *Limiter) Limit() int { return l.limit }

// CheckAndIncrement consumes one request for identity. It returns false,
// leaving the counter untouched, once limit requests were already counted
// in the current window.
func (l *Limiter) CheckAndIncrement(identity string) (bool, error) {
	allowed := false
	err := l.counters.Update(identity, func(e *ephemeral.Entry[int]) (int, ephemeral.Decision) {
		if e == nil {
			allowed = true
			return 1, ephemeral.Replace
		}
		if e.Value >= l.limit {
			return 0, ephemeral.Keep
		}
		e.Value++
		allowed = true
		return 0, ephemeral.Keep
	})
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// Count returns the number of requests counted for identity in this window.
func (l *Limiter) Count(identity string) int {
	e, ok := l.counters.Get(identity)
	if !ok {
		return 0
	}
	return e.Value
}

// Reset zeroes every counter in a single exclusive pass. Entries are kept.
func (l *Limiter) Reset() {
	l.counters.ForEach(func(_ string, count *int) {
		*count = 0
	})
}

// Janitor is the handle of the periodic reset task.
type Janitor struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Start launches the reset task. It runs until ctx is done or Stop is called.
func (l *Limiter) Start(ctx context.Context) *Janitor {
	ctx, cancel := context.WithCancel(ctx)
	j := &Janitor{cancel: cancel}

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(l.window)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Reset()
				l.logger.Debug().Dur("window", l.window).Msg("Rate counters reset")
			case <-ctx.Done():
				return
			}
		}
	}()

	return j
}

// Stop cancels the task and waits for it to exit. Safe to call more than once.
func (j *Janitor) Stop() {
	j.cancel()
	j.wg.Wait()
}
