package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"gatepass/pkg/requestcontext"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation ID. An incoming X-Request-ID
// is kept so IDs survive proxy hops; otherwise a new one is generated.
// The ID is echoed back on the response for client-side correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
