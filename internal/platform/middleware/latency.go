package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatepass/internal/platform/metrics"
)

// LatencyMiddleware records request counts and durations on the platform
// HTTP metrics. It uses the chi route pattern rather than the raw path so
// per-visit URLs do not explode label cardinality.
func LatencyMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			m.ObserveHTTPRequest(r.Method, route, rec.status, time.Since(start))
		})
	}
}
