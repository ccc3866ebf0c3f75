// Package api provides HTTP API utilities including standardized error handling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/middleware"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates an invalid query, filter, payload or export schema.
	ErrCodeValidation = "validation_error"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeReferentialViolation indicates a reference to a missing entity.
	ErrCodeReferentialViolation = "referential_violation"

	// ErrCodeStoreUnavailable indicates the database or cache could not be reached.
	ErrCodeStoreUnavailable = "store_unavailable"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeNotConfigured indicates an optional integration is disabled.
	ErrCodeNotConfigured = "not_configured"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error_code is logged by the logging middleware for all 4xx and 5xx
// responses when the caller stores it with SetErrorCode first:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Collection point not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping returns the HTTP status code for an error code.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeReferentialViolation:
		return http.StatusConflict
	case ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeNotConfigured:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode classifies err by the apperr kind it wraps.
func ErrorCode(err error) string {
	switch apperr.Kind(err) {
	case apperr.ErrInvalidQuery, apperr.ErrMalformedFilter, apperr.ErrInvalidInput, apperr.ErrInvalidSchema:
		return ErrCodeValidation
	case apperr.ErrNotFound:
		return ErrCodeNotFound
	case apperr.ErrReferentialViolation:
		return ErrCodeReferentialViolation
	case apperr.ErrStoreUnavailable:
		return ErrCodeStoreUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeStoreUnavailable
	}
	return ErrCodeInternal
}

// writeServiceError maps err to its error code and status. Client errors
// echo err's message; server errors are logged and answered generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Client went away; nobody reads the response.
		return
	}

	code := ErrorCode(err)
	status := StatusCodeMapping(code)
	ctx = middleware.SetErrorCode(ctx, code)

	message := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		slog.WarnContext(ctx, "store unavailable", "error", err)
		message = "The data store is temporarily unavailable"
	case status >= http.StatusInternalServerError:
		slog.ErrorContext(ctx, "request failed", "error", err)
		message = "Internal server error"
	}
	WriteError(w, ctx, status, code, message)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
	WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, message)
}
