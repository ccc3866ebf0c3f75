// Package requestctx carries per-request identity through a context: the
// request id, the acting user's id and the client IP. The HTTP middleware
// stores them; the catalog service and the audit hook read them.
package requestctx

import "context"

type requestIDKey struct{}

type actorIDKey struct{}

type clientIPKey struct{}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// GetRequestID returns the request id from ctx, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithActorID stores the acting user's id in ctx.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, id)
}

// GetActorID returns the acting user's id, or "" for anonymous requests.
func GetActorID(ctx context.Context) string {
	if id, ok := ctx.Value(actorIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithClientIP stores the client IP in ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// GetClientIP returns the client IP, or "".
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}
