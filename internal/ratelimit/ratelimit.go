// Package ratelimit provides a keyed minimum-interval limiter for outbound
// LLM calls. Callers queue per key and are released in arrival order.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces executions per key by a configured minimum interval.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	turn     chan struct{}
	interval time.Duration
	nextAt   time.Time
}

// New creates an empty limiter. Keys without a configured limit run
// immediately.
func New() *Limiter {
	return &Limiter{entries: make(map[string]*entry)}
}

// SetLimit configures the minimum interval between executions for a key.
// A zero or negative interval disables spacing for that key.
func (l *Limiter) SetLimit(key string, interval time.Duration) {
	e := l.entry(key)
	l.mu.Lock()
	e.interval = interval
	l.mu.Unlock()
}

func (l *Limiter) entry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{turn: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	return e
}

// Do runs fn once the key's spacing allows it. Callers blocked on the same
// key run in arrival order and never overlap; spacing is measured from the
// previous call's completion. A canceled context returns ctx.Err() without
// running fn.
func (l *Limiter) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e := l.entry(key)

	select {
	case e.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.turn }()

	l.mu.Lock()
	interval := e.interval
	wait := time.Until(e.nextAt)
	l.mu.Unlock()

	if interval > 0 && wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	err := fn(ctx)

	if interval > 0 {
		l.mu.Lock()
		e.nextAt = time.Now().Add(interval)
		l.mu.Unlock()
	}
	return err
}
