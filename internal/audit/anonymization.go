package audit

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/onnwee/wastemap/internal/jobs"
)

// DefaultIPRetention is how long audit entries keep a full client IP.
const DefaultIPRetention = 90 * 24 * time.Hour

// AnonymizeIP zeroes the host part of an address: the last octet for IPv4,
// the last 80 bits for IPv6. Unparseable input yields "".
func AnonymizeIP(ipStr string) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}

	masked := make(net.IP, net.IPv6len)
	copy(masked, ip.To16()[:6])
	return masked.String()
}

// Anonymizer periodically masks client IPs older than the retention window.
type Anonymizer struct {
	repo      Repository
	retention time.Duration
	logger    *slog.Logger
	metrics   *jobs.Metrics
	now       func() time.Time
}

// NewAnonymizer creates an Anonymizer. retention <= 0 uses DefaultIPRetention.
func NewAnonymizer(repo Repository, retention time.Duration, logger *slog.Logger) *Anonymizer {
	if retention <= 0 {
		retention = DefaultIPRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Anonymizer{
		repo:      repo,
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics records each pass as a background job run.
func (a *Anonymizer) WithMetrics(m *jobs.Metrics) *Anonymizer {
	a.metrics = m
	return a
}

// Cutoff returns the creation time before which IPs are masked.
func (a *Anonymizer) Cutoff() time.Time {
	return a.now().Add(-a.retention)
}

// Run performs one anonymization pass.
func (a *Anonymizer) Run(ctx context.Context) (int, error) {
	cutoff := a.Cutoff()
	done := a.metrics.Start(jobs.JobTypeAuditAnonymize)
	n, err := a.repo.AnonymizeBefore(ctx, cutoff)
	done(err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "anonymized audit log IP addresses", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Start runs a pass immediately and then every interval until ctx ends.
func (a *Anonymizer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "audit IP anonymization failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
