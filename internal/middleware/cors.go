package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures CORS for the map frontend.
type CORSConfig struct {
	AllowedOrigins   []string // exact origins, no wildcards
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // preflight cache, seconds
}

// DefaultCORSMethods and DefaultCORSHeaders are used when the config leaves them empty.
var (
	DefaultCORSMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	DefaultCORSHeaders = []string{"Content-Type", RequestIDHeader, ActorIDHeader}
)

// CORS validates Origin against an allowlist and answers preflight requests.
// With no origins configured it is a pass-through.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowed := make(map[string]bool)
	for _, origin := range cfg.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = DefaultCORSHeaders
	}
	methodsValue := strings.Join(methods, ", ")
	headersValue := strings.Join(headers, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed[origin] {
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Expose-Headers", "Content-Disposition, "+RequestIDHeader)

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", methodsValue)
				h.Set("Access-Control-Allow-Headers", headersValue)
				if cfg.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
