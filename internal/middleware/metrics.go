package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
)

// Metrics holds the HTTP request collectors.
type Metrics struct {
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec
	httpResponseSize    *prometheus.HistogramVec
}

// NewMetrics creates unregistered collectors; call Register.
func NewMetrics() *Metrics {
	labels := []string{"method", "path", "status"}
	return &Metrics{
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, labels),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "Total number of HTTP requests",
		}, labels),
		httpResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: MetricHTTPResponseSizeBytes,
			Help: "HTTP response size in bytes",
			// Report exports can be large; 100 B to ~100 MB.
			Buckets: prometheus.ExponentialBuckets(100, 10, 7),
		}, labels),
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

// ObserveHTTPRequest records one completed request.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, responseSize int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": status}
	m.httpRequestDuration.With(labels).Observe(duration)
	m.httpRequestsTotal.With(labels).Inc()
	m.httpResponseSize.With(labels).Observe(float64(responseSize))
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestDuration,
		m.httpRequestsTotal,
		m.httpResponseSize,
	}
}
