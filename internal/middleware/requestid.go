// Package middleware provides the HTTP middleware chain for the wastemap API:
// request ids, gateway-supplied actor identity, structured request logging,
// CORS, tracing and Prometheus request metrics.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/onnwee/wastemap/internal/requestctx"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds ids accepted from upstream.
const maxRequestIDLength = 128

// RequestID reuses a well-formed inbound X-Request-ID or generates a UUID,
// echoes it on the response and stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(requestctx.WithRequestID(r.Context(), requestID)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
