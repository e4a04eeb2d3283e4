// Package ratelimit implements sliding-window request limits keyed by client.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether one more request for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Window is an in-process sliding window log.
type Window struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewWindow allows limit requests per window for each key.
func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// WithClock replaces the time source.
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

func (w *Window) Allow(_ context.Context, key string) (bool, error) {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	q := w.hits[key]
	for len(q) > 0 && now.Sub(q[0]) > w.window {
		q = q[1:]
	}
	if len(q) >= w.limit {
		w.hits[key] = q
		return false, nil
	}
	w.hits[key] = append(q, now)
	return true, nil
}

// Prune drops keys whose every entry has left the window.
func (w *Window) Prune() int {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for key, q := range w.hits {
		if len(q) == 0 || now.Sub(q[len(q)-1]) > w.window {
			delete(w.hits, key)
			removed++
		}
	}
	return removed
}
