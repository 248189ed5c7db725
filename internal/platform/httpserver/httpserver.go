// Package httpserver builds the API server with its timeout envelope.
package httpserver

import (
	"net/http"
	"time"
)

// New wraps a handler in an http.Server with conservative edge timeouts.
// Per-request deadlines are the timeout middleware's job; these guard the
// connection itself against slow or stalled peers.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
