package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/wastemap/internal/audit"
	"github.com/onnwee/wastemap/internal/export"
	"github.com/onnwee/wastemap/internal/filter"
)

const (
	cacheKeyPrefix = "wastemap:report:"

	// MetricCacheRequests counts cache lookups by result.
	MetricCacheRequests = "report_cache_requests_total"
)

// Cache serves repeated report requests from Redis. It is best-effort:
// Redis failures are logged and the wrapped Runner answers. Audit trails are
// never cached. As an audit.Hook it drops every cached report after a
// catalog mutation commits.
type Cache struct {
	next     Runner
	client   *redis.Client
	ttl      time.Duration
	zone     string
	logger   *slog.Logger
	requests *prometheus.CounterVec
	enc      cbor.EncMode
}

// NewCache wraps next. loc is the engine's reporting timezone and is part of
// every key.
func NewCache(next Runner, client *redis.Client, ttl time.Duration, loc *time.Location, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}
	return &Cache{
		next:   next,
		client: client,
		ttl:    ttl,
		zone:   loc.String(),
		logger: logger,
		enc:    enc,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheRequests,
			Help: "Report cache lookups by result (hit, miss, error, bypass, invalidate_error)",
		}, []string{"result"}),
	}, nil
}

// Collectors returns the cache's metrics.
func (c *Cache) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.requests}
}

// Run implements Runner.
func (c *Cache) Run(ctx context.Context, req Request) (*Result, error) {
	key, ok := c.key(req)
	if !ok {
		c.requests.WithLabelValues("bypass").Inc()
		return c.next.Run(ctx, req)
	}

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if res, err := c.decode(data); err == nil {
			c.requests.WithLabelValues("hit").Inc()
			return res, nil
		} else {
			c.logger.WarnContext(ctx, "discarding undecodable cached report", "key", key, "error", err)
		}
	case errors.Is(err, redis.Nil):
	default:
		c.requests.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "report cache read failed", "key", key, "error", err)
	}
	c.requests.WithLabelValues("miss").Inc()

	res, err := c.next.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	if data, err := c.encode(res); err != nil {
		c.logger.WarnContext(ctx, "failed to encode report for cache", "key", key, "error", err)
	} else if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "report cache write failed", "key", key, "error", err)
	}
	return res, nil
}

// invalidateBatch is the SCAN page size used by Invalidate.
const invalidateBatch = 200

// Invalidate removes every cached report.
func (c *Cache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", invalidateBatch).Iterator()
	keys := make([]string, 0, invalidateBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == invalidateBatch {
			if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to drop cached reports: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cached reports: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Unlink(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to drop cached reports: %w", err)
		}
	}
	return nil
}

// AfterCommit implements audit.Hook. A failed invalidation is logged; stale
// entries then expire with the TTL.
func (c *Cache) AfterCommit(ctx context.Context, change audit.Change) {
	ctx = context.WithoutCancel(ctx)
	if err := c.Invalidate(ctx); err != nil {
		c.requests.WithLabelValues("invalidate_error").Inc()
		c.logger.WarnContext(ctx, "report cache invalidation failed",
			"error", err,
			"entity_type", change.EntityType,
			"entity_id", change.EntityID,
		)
	}
}

// key digests the resolved request. Requests that differ only in alias
// spelling, key order or an explicit default grouping share a key.
func (c *Cache) key(req Request) (string, bool) {
	if req.Kind == KindAuditTrail {
		return "", false
	}
	by := DefaultGroupBy(req.Kind)
	if req.GroupBy != nil {
		by = *req.GroupBy
	}
	by, err := resolveGroupBy(req.Kind, by)
	if err != nil {
		return "", false
	}

	var sb strings.Builder
	sb.WriteString(string(req.Kind))
	sb.WriteString("|" + by.String())
	sb.WriteString("|" + c.zone)
	for _, k := range filter.Vocabulary {
		if v := req.Filters.Get(k); v != "" {
			fmt.Fprintf(&sb, "|%s=%s", k, v)
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return cacheKeyPrefix + string(req.Kind) + ":" + hex.EncodeToString(sum[:]), true
}

// cell is a typed row value. Exactly one field is set, matching Type.
type cell struct {
	Type  byte       `cbor:"y"`
	Str   string     `cbor:"s,omitempty"`
	Float float64    `cbor:"f,omitempty"`
	Int   int64      `cbor:"i,omitempty"`
	Bool  bool       `cbor:"b,omitempty"`
	Time  *time.Time `cbor:"t,omitempty"`
	List  []string   `cbor:"l,omitempty"`
}

const (
	cellNull byte = iota
	cellString
	cellFloat
	cellInt
	cellBool
	cellTime
	cellList
)

type cachedResult struct {
	Kind        Kind              `cbor:"kind"`
	GroupBy     GroupBy           `cbor:"group_by"`
	Columns     []export.Column   `cbor:"columns"`
	Rows        []map[string]cell `cbor:"rows"`
	GeneratedAt time.Time         `cbor:"generated_at"`
}

func toCell(v any) (cell, error) {
	switch x := v.(type) {
	case nil:
		return cell{Type: cellNull}, nil
	case string:
		return cell{Type: cellString, Str: x}, nil
	case float64:
		return cell{Type: cellFloat, Float: x}, nil
	case int:
		return cell{Type: cellInt, Int: int64(x)}, nil
	case int64:
		return cell{Type: cellInt, Int: x}, nil
	case bool:
		return cell{Type: cellBool, Bool: x}, nil
	case time.Time:
		return cell{Type: cellTime, Time: &x}, nil
	case []string:
		return cell{Type: cellList, List: slices.Clone(x)}, nil
	}
	return cell{}, fmt.Errorf("unsupported report value %T", v)
}

func (cl cell) value() any {
	switch cl.Type {
	case cellString:
		return cl.Str
	case cellFloat:
		return cl.Float
	case cellInt:
		return int(cl.Int)
	case cellBool:
		return cl.Bool
	case cellTime:
		if cl.Time == nil {
			return nil
		}
		return *cl.Time
	case cellList:
		if cl.List == nil {
			return []string{}
		}
		return cl.List
	}
	return nil
}

func (c *Cache) encode(res *Result) ([]byte, error) {
	cr := cachedResult{
		Kind:        res.Kind,
		GroupBy:     res.GroupBy,
		Columns:     res.Columns,
		Rows:        make([]map[string]cell, len(res.Rows)),
		GeneratedAt: res.GeneratedAt,
	}
	for i, row := range res.Rows {
		m := make(map[string]cell, len(row))
		for k, v := range row {
			cl, err := toCell(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			m[k] = cl
		}
		cr.Rows[i] = m
	}
	return c.enc.Marshal(cr)
}

func (c *Cache) decode(data []byte) (*Result, error) {
	var cr cachedResult
	if err := cbor.Unmarshal(data, &cr); err != nil {
		return nil, err
	}
	res := &Result{
		Kind:        cr.Kind,
		GroupBy:     cr.GroupBy,
		Columns:     cr.Columns,
		Rows:        make([]export.Row, len(cr.Rows)),
		GeneratedAt: cr.GeneratedAt,
	}
	for i, m := range cr.Rows {
		row := make(export.Row, len(m))
		for k, cl := range m {
			row[k] = cl.value()
		}
		res.Rows[i] = row
	}
	return res, nil
}
