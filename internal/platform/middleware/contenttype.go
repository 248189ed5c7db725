package middleware

import (
	"net/http"
	"strings"

	dErrors "gatepass/pkg/domain-errors"
	"gatepass/pkg/platform/httputil"
)

// ContentTypeJSON rejects request bodies that declare a non-JSON content
// type. Requests without a body pass through untouched.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Content-Type must be application/json"))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
