// Package ratelimit provides fixed-window request counting for the scan
// endpoint. Windows are derived from the request clock, not the wall clock,
// so limits are deterministic under test. Two stores share the semantics:
// Memory for single-instance deployments, Redis when the desk fleet shares
// a limiter.
package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is the whole-second wait before the window resets. Only
	// meaningful when Allowed is false.
	RetryAfter int
}

// Store counts requests per key in fixed windows. Allow increments the
// current window's counter and reports whether the request fits the limit.
// Reset clears the key's current window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
	Reset(ctx context.Context, key string, window time.Duration) error
}

// windowStart buckets an instant into its fixed window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func buildResult(now, start time.Time, window time.Duration, limit, count int) *Result {
	resetAt := start.Add(window)
	r := &Result{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !r.Allowed {
		retry := int(resetAt.Sub(now).Seconds())
		if retry < 1 {
			retry = 1
		}
		r.RetryAfter = retry
	}
	return r
}
