package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds request handling time through the request context.
// Handlers and services observe the deadline via ctx.Done().
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
