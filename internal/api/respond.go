package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/wastemap/internal/export"
	"github.com/onnwee/wastemap/internal/middleware"
)

// maxBodyBytes bounds mutation payloads.
const maxBodyBytes = 1 << 20

// writeJSON encodes v with status. Encoding happens before the header is
// written so an encode failure still yields a clean 500. A Content-Type set
// by the caller is kept.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	var buf bytes.Buffer
	if err := export.WriteJSON(&buf, v); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "error", err)
	}
}

// writeDownload sends a rendered export as an attachment.
func writeDownload(w http.ResponseWriter, r *http.Request, format export.Format, filename string, body []byte) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to write download", "error", err)
	}
}

// encodeCSV renders rows under schema.
func encodeCSV(rows []export.Row, schema []export.Column) ([]byte, error) {
	var buf bytes.Buffer
	if err := (export.Encoder{}).Encode(&buf, rows, schema); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeJSON reads a single JSON object into dst. It writes the 400 itself
// and returns false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
			WriteError(w, ctx, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Request body too large")
			return false
		}
		writeBadRequest(w, r, "Invalid JSON in request body")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeBadRequest(w, r, "Request body must contain a single JSON object")
		return false
	}
	return true
}
