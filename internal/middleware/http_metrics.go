package middleware

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// idSegment matches path segments that identify a single entity.
var idSegment = regexp.MustCompile(`^(?i:[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}|[0-9]+)$`)

// normalizePath replaces id segments with {id} so metric label cardinality
// follows the route table, e.g. /api/subscribers/<uuid> -> /api/subscribers/{id}.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if idSegment.MatchString(p) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

// HTTPMetrics records duration, count and response size per normalized
// route. /health and /ready are skipped.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(rw.statusCode),
				time.Since(start).Seconds(),
				int64(rw.size),
			)
		})
	}
}
