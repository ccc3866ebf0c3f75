package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/archive"
	"github.com/onnwee/wastemap/internal/export"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/middleware"
	"github.com/onnwee/wastemap/internal/report"
)

// Archiver stores rendered exports and returns a download link.
// *archive.Store implements it.
type Archiver interface {
	Put(ctx context.Context, name, filename, contentType string, data []byte) (*archive.Receipt, error)
}

// ReportHandlers serves aggregated reports.
type ReportHandlers struct {
	runner  report.Runner
	archive Archiver
	logger  *slog.Logger
}

// ReportHandlersConfig configures the report handlers. Archive is optional.
type ReportHandlersConfig struct {
	Runner  report.Runner
	Archive Archiver
	Logger  *slog.Logger
}

// NewReportHandlers creates the report handlers.
func NewReportHandlers(cfg ReportHandlersConfig) *ReportHandlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportHandlers{runner: cfg.Runner, archive: cfg.Archive, logger: logger}
}

// request reads the report kind from the path and the grouping and
// filters from the query.
func (h *ReportHandlers) request(r *http.Request) (report.Request, error) {
	kind, err := report.ParseKind(r.PathValue("kind"))
	if err != nil {
		return report.Request{}, err
	}
	query := r.URL.Query()
	req := report.Request{Kind: kind, Filters: filter.FromQuery(query)}

	period, dims := query.Get("groupBy"), query.Get("dimensions")
	if period != "" || dims != "" {
		by, err := report.ParseGroupBy(kind, period, dims)
		if err != nil {
			return report.Request{}, err
		}
		req.GroupBy = &by
	}
	return req, nil
}

// Get handles GET /api/reports/{kind}. format=csv downloads the report
// under its conventional file name.
func (h *ReportHandlers) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.request(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if format == export.FormatGeoJSON {
		writeServiceError(w, r, fmt.Errorf("%w: reports are not available as geojson", apperr.ErrInvalidQuery))
		return
	}

	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if format == export.FormatCSV {
		body, err := encodeCSV(res.Rows, res.Columns)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeDownload(w, r, format, res.Filename(), body)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Archive handles POST /api/reports/{kind}/archive. It renders the report
// as CSV, uploads it and returns the presigned download link.
func (h *ReportHandlers) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotConfigured)
		WriteError(w, ctx, http.StatusNotImplemented, ErrCodeNotConfigured, "Report archiving is not configured")
		return
	}

	req, err := h.request(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	body, err := encodeCSV(res.Rows, res.Columns)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	receipt, err := h.archive.Put(r.Context(), string(res.Kind), res.Filename(), export.FormatCSV.ContentType(), body)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
		}
		writeServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "report archived",
		"kind", res.Kind,
		"key", receipt.Key,
		"size_bytes", receipt.SizeBytes,
	)
	writeJSON(w, r, http.StatusCreated, receipt)
}
