// Package report aggregates collection events into time-bucketed,
// multi-dimensional reports. A Source returns joined fact rows in one store
// call; bucketing and measures are computed here so every store produces
// identical reports.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/export"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/tracing"
)

// Request is one report invocation. A nil GroupBy takes the kind's default.
type Request struct {
	Kind    Kind
	Filters filter.Values
	GroupBy *GroupBy
}

// Result is a rendered report.
type Result struct {
	Kind        Kind            `json:"kind"`
	GroupBy     GroupBy         `json:"group_by"`
	Columns     []export.Column `json:"columns"`
	Rows        []export.Row    `json:"rows"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Filename returns the CSV download name of the result.
func (r *Result) Filename() string { return Filename(r.Kind) }

// Runner produces reports. Engine and Cache implement it.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

// Engine runs reports against a Source. All period bucketing uses loc.
type Engine struct {
	source Source
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil loc means UTC.
func NewEngine(source Source, loc *time.Location, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{source: source, loc: loc, now: time.Now, logger: logger}
}

// Location returns the engine's reporting timezone.
func (e *Engine) Location() *time.Location { return e.loc }

// Run parses req's filters, fetches facts and aggregates them.
func (e *Engine) Run(ctx context.Context, req Request) (_ *Result, err error) {
	by := DefaultGroupBy(req.Kind)
	if req.GroupBy != nil {
		by = *req.GroupBy
	}
	by, err = resolveGroupBy(req.Kind, by)
	if err != nil {
		return nil, err
	}

	c, err := filter.Parse(req.Filters, e.loc)
	if err != nil {
		return nil, err
	}

	ctx, end := tracing.StartSpan(ctx, "report.run",
		attribute.String("report.kind", string(req.Kind)),
		attribute.String("report.group_by", by.String()),
	)
	defer func() { end(err) }()

	var rows []export.Row
	switch req.Kind {
	case KindCollectionSummary:
		rows, err = e.collectionSummary(ctx, c, by)
	case KindCollectionStats:
		rows, err = e.collectionStats(ctx, c, by)
	case KindSubscriberActivity:
		rows, err = e.subscriberActivity(ctx, c, by)
	case KindPointPerformance:
		rows, err = e.pointPerformance(ctx, c, by)
	case KindAuditTrail:
		rows, err = e.auditTrail(ctx, c)
	case KindDashboard:
		rows, err = e.dashboard(ctx, c)
	default:
		err = fmt.Errorf("%w: unknown report kind %q", apperr.ErrInvalidQuery, req.Kind)
	}
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "report generated",
		"kind", req.Kind, "group_by", by.String(), "rows", len(rows))

	return &Result{
		Kind:        req.Kind,
		GroupBy:     by,
		Columns:     Schema(req.Kind, by),
		Rows:        rows,
		GeneratedAt: e.now().UTC(),
	}, nil
}

func (e *Engine) eventRows(ctx context.Context, c filter.Criteria, by GroupBy, keys ...comparator) ([]export.Row, error) {
	facts, err := e.source.Events(ctx, c)
	if err != nil {
		return nil, err
	}

	agg := newAggregator(by, e.loc)
	for i := range facts {
		agg.add("", nil, nil, &facts[i])
	}
	sortGroups(agg.list, keys...)

	rows := make([]export.Row, 0, len(agg.list))
	for _, g := range agg.list {
		rows = append(rows, agg.row(g))
	}
	return rows, nil
}

// collectionSummary groups events by period and dimensions, most recent
// period first.
func (e *Engine) collectionSummary(ctx context.Context, c filter.Criteria, by GroupBy) ([]export.Row, error) {
	return e.eventRows(ctx, c, by, byPeriodDesc, byJurisdiction, byWasteType)
}

// collectionStats is the per-jurisdiction breakdown, heaviest waste type
// first within each jurisdiction.
func (e *Engine) collectionStats(ctx context.Context, c filter.Criteria, by GroupBy) ([]export.Row, error) {
	return e.eventRows(ctx, c, by, byJurisdiction, byPeriodDesc, byWeightDesc, byWasteType)
}

// subscriberActivity credits each active subscriber with the events at its
// collection point. Subscribers without events keep a zero row.
func (e *Engine) subscriberActivity(ctx context.Context, c filter.Criteria, by GroupBy) ([]export.Row, error) {
	facts, err := e.source.SubscriberActivity(ctx, c)
	if err != nil {
		return nil, err
	}

	agg := newAggregator(by, e.loc)
	for i := range facts {
		f := &facts[i]
		base := export.Row{
			"subscriber_id":         f.SubscriberID,
			"business_name":         f.BusinessName,
			"business_type":         f.BusinessType,
			"service_category":      f.ServiceCategory,
			"collection_point_name": f.PointName,
			fieldJurisdiction:       f.Jurisdiction,
		}
		agg.add(f.SubscriberID, base, &f.Jurisdiction, f.Event)
	}
	sortGroups(agg.list, byWeightDesc, byPeriodDesc, byWasteType, byBaseField("business_name"), byEntity)

	rows := make([]export.Row, 0, len(agg.list))
	for _, g := range agg.list {
		row := agg.row(g)
		row[fieldJurisdiction] = g.base[fieldJurisdiction]
		rows = append(rows, row)
	}
	return rows, nil
}

// pointPerformance summarizes each active collection point, including
// points with no events in range.
func (e *Engine) pointPerformance(ctx context.Context, c filter.Criteria, by GroupBy) ([]export.Row, error) {
	facts, err := e.source.PointPerformance(ctx, c)
	if err != nil {
		return nil, err
	}

	agg := newAggregator(by, e.loc)
	for i := range facts {
		f := &facts[i]
		base := export.Row{
			"collection_point_id":   f.PointID,
			"collection_point_name": f.PointName,
			fieldJurisdiction:       f.Jurisdiction,
		}
		g := agg.add(f.PointID, base, &f.Jurisdiction, f.Event)
		g.subscriberCount = f.SubscriberCount
	}
	sortGroups(agg.list, byWeightDesc, byPeriodDesc, byWasteType, byBaseField("collection_point_name"), byEntity)

	rows := make([]export.Row, 0, len(agg.list))
	for _, g := range agg.list {
		row := agg.row(g)
		row[fieldJurisdiction] = g.base[fieldJurisdiction]
		row[fieldSubscriberCount] = g.subscriberCount
		row[fieldWasteTypes] = sortedKeys(g.wasteTypes)
		rows = append(rows, row)
	}
	return rows, nil
}

// auditTrail is the ungrouped shape: one row per entry, newest first.
func (e *Engine) auditTrail(ctx context.Context, c filter.Criteria) ([]export.Row, error) {
	entries, err := e.source.AuditTrail(ctx, c)
	if err != nil {
		return nil, err
	}

	rows := make([]export.Row, 0, len(entries))
	for _, en := range entries {
		row := export.Row{
			"id":         en.ID,
			"created_at": en.CreatedAt,
			"actor_id":   en.ActorID,
			"action":     en.Action,
			"table_name": en.EntityType,
			"record_id":  en.EntityID,
			"ip_address": en.IPAddress,
			"request_id": en.RequestID,
			"changes":    nil,
		}
		if len(en.Changes) > 0 {
			row["changes"] = string(en.Changes)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// dashboard returns a single row of headline totals. Entity counts ignore
// filters; event totals honor them.
func (e *Engine) dashboard(ctx context.Context, c filter.Criteria) ([]export.Row, error) {
	t, err := e.source.Totals(ctx, c)
	if err != nil {
		return nil, err
	}
	return []export.Row{{
		"total_collection_points": t.ActivePoints,
		"total_subscribers":       t.ActiveSubscribers,
		"total_collections":       t.Collections,
		fieldVolume:               t.VolumeCubicMeters,
		fieldWeight:               t.WeightTons,
	}}, nil
}
