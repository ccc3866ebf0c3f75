package db

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/tracing"
)

// Metric names.
const (
	MetricQueryDuration = "store_query_duration_seconds"
	MetricQueryErrors   = "store_query_errors_total"
)

// Metrics records store call latency and failures per table and operation.
type Metrics struct {
	queryDuration *prometheus.HistogramVec
	queryErrors   *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricQueryDuration,
			Help:    "Duration of store calls in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"table", "operation"}),
		queryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricQueryErrors,
			Help: "Total failed store calls by error kind",
		}, []string{"table", "operation", "kind"}),
	}
}

// Register registers all collectors with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.queryDuration, m.queryErrors}
}

// Track starts a store span for one call and returns a function that ends it
// and records duration and error kind. A nil *Metrics only traces.
//
//	ctx, done := r.metrics.Track(ctx, "subscribers", tracing.DBOperationQuery)
//	defer func() { done(err) }()
func (m *Metrics) Track(ctx context.Context, table string, op tracing.DBOperation) (context.Context, func(error)) {
	ctx, end := tracing.StartDBSpan(ctx, table, op)
	start := time.Now()

	return ctx, func(err error) {
		end(err)
		if m == nil {
			return
		}
		m.queryDuration.WithLabelValues(table, string(op)).Observe(time.Since(start).Seconds())
		if err != nil {
			m.queryErrors.WithLabelValues(table, string(op), errorKind(err)).Inc()
		}
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, apperr.ErrReferentialViolation):
		return "referential_violation"
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
