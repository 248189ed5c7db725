package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"gatepass/pkg/requestcontext"
)

// ClientMetadata extracts the originating client IP and a short device
// description and stores both in the request context. The IP feeds rate
// limiting; the device shows up in scan logs so a misbehaving gate terminal
// can be identified. Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), ClientIPFromRequest(r))
		ctx = requestcontext.WithDevice(ctx, DeviceFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest extracts the real client IP from the request,
// handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can carry multiple IPs (client, proxy1, proxy2, ...);
	// the first is the original client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" for IPv4 and "[::1]:port" for IPv6.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}

// DeviceFromRequest condenses the User-Agent header into "Browser/Version
// (OS)". Gate hardware and scripts that send a bare product token come
// through as-is.
func DeviceFromRequest(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("User-Agent"))
	if raw == "" {
		return ""
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	device := name
	if version != "" {
		device += "/" + version
	}
	if os := ua.OS(); os != "" {
		device += " (" + os + ")"
	}
	return device
}
