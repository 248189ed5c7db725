// Package requestcontext carries per-request values (actor, client IP,
// request ID, request time) through context.Context.
//
// Handlers and middleware set values at the edge; services read them.
// Now returns the request-stamped time when present so a whole request
// observes a single clock reading, and falls back to time.Now otherwise.
package requestcontext

import (
	"context"
	"time"

	"gatepass/pkg/domain"
)

type contextKey string

const (
	actorKey       contextKey = "actor"
	clientIPKey    contextKey = "client_ip"
	deviceKey      contextKey = "device"
	requestIDKey   contextKey = "request_id"
	requestTimeKey contextKey = "request_time"
)

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// Actor returns the authenticated actor, if any.
func Actor(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}

// WithClientIP returns a context carrying the originating client IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP returns the originating client IP, or "" when unset.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// WithDevice returns a context carrying a short description of the calling
// device, as derived from the User-Agent header.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceKey, device)
}

// Device returns the calling device description, or "" when unset.
func Device(ctx context.Context) string {
	device, _ := ctx.Value(deviceKey).(string)
	return device
}

// WithRequestID returns a context carrying the request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request correlation ID, or "" when unset.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTime returns a context stamped with the request's observation time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}

// Now returns the request-stamped time, or time.Now when none was set.
// Tests stamp a fixed instant to make time-dependent behavior deterministic.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}
