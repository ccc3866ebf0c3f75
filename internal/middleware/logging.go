package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/onnwee/wastemap/internal/requestctx"
)

type errorCodeKey struct{}

// SetErrorCode stores an API error code in ctx for the request log line.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode returns the error code stored in ctx, or "".
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}

// responseWriter records status, size and the error code handlers report
// back through UpdateResponseContext.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
	errorCode   string
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// UpdateResponseContext hands the error code in ctx to the Logging
// middleware. Handlers derive a new context per error, which the outer
// middleware cannot see otherwise.
func UpdateResponseContext(w http.ResponseWriter, ctx context.Context) {
	code := GetErrorCode(ctx)
	if code == "" {
		return
	}
	for {
		switch rw := w.(type) {
		case *responseWriter:
			rw.errorCode = code
			w = rw.ResponseWriter
		case interface{ Unwrap() http.ResponseWriter }:
			w = rw.Unwrap()
		default:
			return
		}
	}
}

// NewLogger returns a JSON logger in production and a text logger otherwise.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}

// Logging writes one structured line per request: method, path, status,
// latency, size, request id, actor id and, for 4xx/5xx, the error code.
// Place Recover outside Logging so panicking requests are still logged.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
				slog.Int("size", rw.size),
			}
			if id := requestctx.GetRequestID(r.Context()); id != "" {
				attrs = append(attrs, slog.String("request_id", id))
			}
			if actor := requestctx.GetActorID(r.Context()); actor != "" {
				attrs = append(attrs, slog.String("actor_id", actor))
			}
			if rw.statusCode >= 400 && rw.errorCode != "" {
				attrs = append(attrs, slog.String("error_code", rw.errorCode))
			}

			level := slog.LevelInfo
			switch {
			case rw.statusCode >= 500:
				level = slog.LevelError
			case rw.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request completed", attrs...)
		})
	}
}

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.ErrorContext(r.Context(), "handler panic",
						"panic", v,
						"path", r.URL.Path,
						"request_id", requestctx.GetRequestID(r.Context()),
						"stack", string(debug.Stack()),
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
