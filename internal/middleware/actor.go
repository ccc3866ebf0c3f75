package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/onnwee/wastemap/internal/requestctx"
)

// ActorIDHeader is set by the upstream gateway after authenticating the caller.
const ActorIDHeader = "X-Actor-ID"

// Actor copies the gateway-supplied actor id and the client IP into the
// request context. Actor ids that are not UUIDs are dropped; the request
// proceeds anonymously.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestctx.WithClientIP(r.Context(), ClientIP(r))
		if id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(ActorIDHeader))); err == nil {
			ctx = requestctx.WithActorID(ctx, id.String())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP extracts the client address from X-Forwarded-For (first hop),
// X-Real-IP, then RemoteAddr, with any port stripped.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return stripPort(first)
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return stripPort(xri)
	}
	return stripPort(r.RemoteAddr)
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
