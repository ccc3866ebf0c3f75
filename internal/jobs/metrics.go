// Package jobs instruments wastemap's periodic background work.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricJobsTotal      = "wastemap_background_jobs_total"
	MetricJobsDuration   = "wastemap_background_jobs_duration_seconds"
	MetricJobErrorsTotal = "wastemap_background_job_errors_total"
)

// Job types.
const (
	JobTypeAuditAnonymize = "audit_ip_anonymize"
)

const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusCanceled = "canceled"
)

// Metrics counts and times background job runs. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	jobsTotal    *prometheus.CounterVec
	jobsDuration *prometheus.HistogramVec
	jobErrors    *prometheus.CounterVec
}

// NewMetrics creates unregistered job metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricJobsTotal,
				Help: "Background job runs by type and status",
			},
			[]string{"job_type", "status"},
		),
		jobsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricJobsDuration,
				Help:    "Background job duration in seconds by type",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"job_type"},
		),
		jobErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricJobErrorsTotal,
				Help: "Background job errors by type and error class",
			},
			[]string{"job_type", "error_type"},
		),
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

// Collectors returns the underlying collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.jobsTotal, m.jobsDuration, m.jobErrors}
}

// Start begins timing a run of jobType. The returned func records the
// outcome; call it exactly once.
func (m *Metrics) Start(jobType string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		m.jobsDuration.WithLabelValues(jobType).Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			m.jobsTotal.WithLabelValues(jobType, StatusSuccess).Inc()
		case errors.Is(err, context.Canceled):
			m.jobsTotal.WithLabelValues(jobType, StatusCanceled).Inc()
		default:
			m.jobsTotal.WithLabelValues(jobType, StatusFailure).Inc()
			m.jobErrors.WithLabelValues(jobType, errorType(err)).Inc()
		}
	}
}

func errorType(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
