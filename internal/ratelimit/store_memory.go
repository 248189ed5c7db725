package ratelimit

import (
	"context"
	"sync"
	"time"

	"gatepass/pkg/requestcontext"
)

// sweepThreshold bounds the counter map: once it grows past this many keys,
// Allow drops every bucket whose window has already ended.
const sweepThreshold = 4096

// Memory is a mutex-guarded fixed-window counter store.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	start time.Time
	count int
}

// NewMemory creates an in-memory fixed-window store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*bucket)}
}

// Allow counts the request against the key's current window.
func (s *Memory) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := requestcontext.Now(ctx)
	start := windowStart(now, window)

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buckets) > sweepThreshold {
		s.sweep(now, window)
	}

	b := s.buckets[key]
	if b == nil || b.start.Before(start) {
		b = &bucket{start: start}
		s.buckets[key] = b
	}
	b.count++

	return buildResult(now, start, window, limit, b.count), nil
}

// Reset clears the counter for a key.
func (s *Memory) Reset(_ context.Context, key string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// sweep removes buckets from past windows. Callers hold s.mu.
func (s *Memory) sweep(now time.Time, window time.Duration) {
	for key, b := range s.buckets {
		if now.Sub(b.start) >= window {
			delete(s.buckets, key)
		}
	}
}
