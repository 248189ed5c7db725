package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/httputil"
	"gatepass/pkg/requestcontext"
)

// Middleware returns a fixed-window limiter for one route. Requests are
// keyed by the authenticated actor, falling back to the client IP for
// anything that slipped past auth. Store failures fail open: an unreachable
// limiter must not close the gate.
func Middleware(store Store, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			result, err := store.Allow(ctx, requestKey(ctx), limit, window)
			if err != nil {
				logger.ErrorContext(ctx, "rate limit check failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				logger.WarnContext(ctx, "rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"retry_after", result.RetryAfter,
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many scan attempts, slow down"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestKey prefers the actor identity so a shared desk IP does not starve
// its neighbors; unauthenticated traffic falls back to the client address.
func requestKey(ctx context.Context) string {
	if actor, ok := requestcontext.Actor(ctx); ok && !actor.IsZero() {
		return "actor:" + actor.ID.String()
	}
	return "ip:" + requestcontext.ClientIP(ctx)
}

func addRateLimitHeaders(w http.ResponseWriter, result *Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
