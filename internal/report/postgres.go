package report

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/wastemap/internal/audit"
	"github.com/onnwee/wastemap/internal/db"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/tracing"
)

// PostgresSource reads report facts from PostGIS.
type PostgresSource struct {
	db      *sql.DB
	metrics *db.Metrics
	audit   *audit.PostgresRepository
}

// NewPostgresSource creates a PostgresSource. metrics may be nil.
func NewPostgresSource(conn *sql.DB, metrics *db.Metrics) *PostgresSource {
	return &PostgresSource{db: conn, metrics: metrics, audit: audit.NewPostgresRepository(conn, metrics)}
}

const eventFactSelect = `
	SELECT ce.id, ce.collection_date, cp.id, cp.name, cp.local_government_area,
	       wt.id, wt.name, ce.volume_cubic_meters, ce.weight_tons
	FROM collection_events ce
	JOIN collection_points cp ON ce.collection_point_id = cp.id
	JOIN waste_types wt ON ce.waste_type_id = wt.id`

// nullableEvent scans the outer-joined event columns.
type nullableEvent struct {
	id, wasteTypeID, wasteType sql.NullString
	collectedAt                sql.NullTime
	volume, weight             sql.NullFloat64
}

func (n *nullableEvent) dest() []any {
	return []any{&n.id, &n.collectedAt, &n.wasteTypeID, &n.wasteType, &n.volume, &n.weight}
}

func (n *nullableEvent) fact(pointID, pointName, jurisdiction string) *EventFact {
	if !n.id.Valid {
		return nil
	}
	return &EventFact{
		ID:                n.id.String,
		CollectedAt:       n.collectedAt.Time,
		PointID:           pointID,
		PointName:         pointName,
		Jurisdiction:      jurisdiction,
		WasteTypeID:       n.wasteTypeID.String,
		WasteType:         n.wasteType.String,
		VolumeCubicMeters: n.volume.Float64,
		WeightTons:        n.weight.Float64,
	}
}

// joinedEvents is the event side of the outer-join reports. The event and
// waste type are inner-joined to each other, then outer-joined as a unit.
const joinedEvents = `
	LEFT JOIN (collection_events ce JOIN waste_types wt ON ce.waste_type_id = wt.id)
	       ON ce.collection_point_id = cp.id`

// Events implements Source.
func (s *PostgresSource) Events(ctx context.Context, c filter.Criteria) (_ []EventFact, err error) {
	ctx, done := s.metrics.Track(ctx, "collection_events", tracing.DBOperationQuery)
	defer func() { done(err) }()

	where, args := filter.Where(nil, filter.Build(c, EventFactColumns), 1)
	rows, err := s.db.QueryContext(ctx, eventFactSelect+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event facts: %w", db.Classify(err))
	}
	defer rows.Close()

	var facts []EventFact
	for rows.Next() {
		var f EventFact
		if err := rows.Scan(
			&f.ID, &f.CollectedAt, &f.PointID, &f.PointName, &f.Jurisdiction,
			&f.WasteTypeID, &f.WasteType, &f.VolumeCubicMeters, &f.WeightTons,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event fact: %w", db.Classify(err))
		}
		facts = append(facts, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event facts: %w", db.Classify(err))
	}
	return facts, nil
}

// outerJoin renders the join condition and WHERE clause of an outer-join
// report. Join predicates are numbered first.
func outerJoin(c filter.Criteria, entity filter.Columns, base []string) (join, where string, args []any) {
	on, joinArgs := filter.Render(nil, filter.Build(c, EventJoinColumns), 1)
	if on != "" {
		join = " AND " + on
	}
	where, whereArgs := filter.Where(base, filter.Build(c, entity), len(joinArgs)+1)
	return join, where, append(joinArgs, whereArgs...)
}

// SubscriberActivity implements Source.
func (s *PostgresSource) SubscriberActivity(ctx context.Context, c filter.Criteria) (_ []SubscriberFact, err error) {
	ctx, done := s.metrics.Track(ctx, "subscribers", tracing.DBOperationQuery)
	defer func() { done(err) }()

	join, where, args := outerJoin(c, SubscriberEntityColumns, []string{"s.is_active = true"})
	query := `
		SELECT s.id, s.business_name, s.business_type, s.service_category,
		       cp.id, cp.name, cp.local_government_area,
		       ce.id, ce.collection_date, wt.id, wt.name, ce.volume_cubic_meters, ce.weight_tons
		FROM subscribers s
		JOIN collection_points cp ON s.collection_point_id = cp.id` +
		joinedEvents + join + `
		` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriber activity: %w", db.Classify(err))
	}
	defer rows.Close()

	var facts []SubscriberFact
	for rows.Next() {
		var f SubscriberFact
		var pointID string
		var ev nullableEvent
		dest := append([]any{
			&f.SubscriberID, &f.BusinessName, &f.BusinessType, &f.ServiceCategory,
			&pointID, &f.PointName, &f.Jurisdiction,
		}, ev.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber activity: %w", db.Classify(err))
		}
		f.Event = ev.fact(pointID, f.PointName, f.Jurisdiction)
		facts = append(facts, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriber activity: %w", db.Classify(err))
	}
	return facts, nil
}

// PointPerformance implements Source.
func (s *PostgresSource) PointPerformance(ctx context.Context, c filter.Criteria) (_ []PointFact, err error) {
	ctx, done := s.metrics.Track(ctx, "collection_points", tracing.DBOperationQuery)
	defer func() { done(err) }()

	join, where, args := outerJoin(c, PointEntityColumns, []string{"cp.is_active = true"})
	query := `
		SELECT cp.id, cp.name, cp.local_government_area,
		       (SELECT COUNT(*) FROM subscribers s
		        WHERE s.collection_point_id = cp.id AND s.is_active = true),
		       ce.id, ce.collection_date, wt.id, wt.name, ce.volume_cubic_meters, ce.weight_tons
		FROM collection_points cp` +
		joinedEvents + join + `
		` + where

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query point performance: %w", db.Classify(err))
	}
	defer rows.Close()

	var facts []PointFact
	for rows.Next() {
		var f PointFact
		var ev nullableEvent
		dest := append([]any{&f.PointID, &f.PointName, &f.Jurisdiction, &f.SubscriberCount}, ev.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan point performance: %w", db.Classify(err))
		}
		f.Event = ev.fact(f.PointID, f.PointName, f.Jurisdiction)
		facts = append(facts, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating point performance: %w", db.Classify(err))
	}
	return facts, nil
}

// AuditTrail implements Source.
func (s *PostgresSource) AuditTrail(ctx context.Context, c filter.Criteria) ([]audit.Entry, error) {
	return s.audit.Query(ctx, c, 0)
}

// Totals implements Source.
func (s *PostgresSource) Totals(ctx context.Context, c filter.Criteria) (_ Totals, err error) {
	ctx, done := s.metrics.Track(ctx, "collection_events", tracing.DBOperationQuery)
	defer func() { done(err) }()

	where, args := filter.Where(nil, filter.Build(c, EventFactColumns), 1)
	query := `
		SELECT
		  (SELECT COUNT(*) FROM collection_points WHERE is_active = true),
		  (SELECT COUNT(*) FROM subscribers WHERE is_active = true),
		  COUNT(ce.id),
		  COALESCE(SUM(ce.volume_cubic_meters), 0),
		  COALESCE(SUM(ce.weight_tons), 0)
		FROM collection_events ce
		JOIN collection_points cp ON ce.collection_point_id = cp.id
		` + where

	var t Totals
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&t.ActivePoints, &t.ActiveSubscribers, &t.Collections, &t.VolumeCubicMeters, &t.WeightTons,
	)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to query dashboard totals: %w", db.Classify(err))
	}
	return t, nil
}
