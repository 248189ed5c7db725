package middleware

import (
	"net/http"
	"time"

	"gatepass/pkg/requestcontext"
)

// RequestTime stamps each request with a single observation time so every
// domain operation within the request shares one clock reading. Expiry
// checks, timestamps, and audit entries all agree on "now".
func RequestTime(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
