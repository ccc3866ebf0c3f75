package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/db"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/geo"
	"github.com/onnwee/wastemap/internal/tracing"
)

// PostgresRepository implements Repository on PostGIS.
type PostgresRepository struct {
	db      *sql.DB
	metrics *db.Metrics
}

// NewPostgresRepository creates a PostgresRepository. metrics may be nil.
func NewPostgresRepository(conn *sql.DB, metrics *db.Metrics) *PostgresRepository {
	return &PostgresRepository{db: conn, metrics: metrics}
}

// proximityPadding widens ST_DWithin slightly so the spheroid/sphere
// difference never drops a candidate the haversine check would keep.
const proximityPadding = 1.005

const pointSelect = `
	SELECT cp.id, cp.name, COALESCE(cp.address, ''),
	       ST_Y(cp.location), ST_X(cp.location),
	       cp.local_government_area, COALESCE(cp.notes, ''), cp.is_active,
	       cp.created_at, cp.updated_at
	FROM collection_points cp`

const subscriberSelect = `
	SELECT s.id, s.business_name, s.business_type, s.service_category,
	       COALESCE(s.contact_person, ''), COALESCE(s.email, ''), COALESCE(s.phone, ''),
	       COALESCE(s.address, ''), ST_Y(s.location), ST_X(s.location),
	       s.collection_point_id::text, s.is_active,
	       s.created_at, s.updated_at,
	       COALESCE(cp.name, ''), COALESCE(cp.local_government_area, '')
	FROM subscribers s
	LEFT JOIN collection_points cp ON s.collection_point_id = cp.id`

const eventSelect = `
	SELECT ce.id, ce.collection_point_id, ce.waste_type_id, ce.collection_date,
	       ce.volume_cubic_meters, ce.weight_tons, COALESCE(ce.crew_members, '[]'::jsonb),
	       COALESCE(ce.notes, ''), COALESCE(ce.created_by::text, ''),
	       ce.created_at, ce.updated_at,
	       cp.name, cp.local_government_area, wt.name,
	       ST_Y(cp.location), ST_X(cp.location)
	FROM collection_events ce
	JOIN collection_points cp ON ce.collection_point_id = cp.id
	JOIN waste_types wt ON ce.waste_type_id = wt.id`

// checkID maps ids that cannot be a uuid column value to ErrNotFound before
// they reach the store.
func checkID(kind EntityKind, id string) error {
	if uuid.Validate(id) != nil {
		return notFound(kind, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLocation(lat, lng float64) (geo.Location, error) {
	loc, err := geo.NewLocation(lat, lng)
	if err != nil {
		return geo.Location{}, fmt.Errorf("stored location out of range: %w", err)
	}
	return loc, nil
}

func scanPoint(row scanner) (CollectionPoint, error) {
	var p CollectionPoint
	var lat, lng float64
	if err := row.Scan(
		&p.ID, &p.Name, &p.Address, &lat, &lng,
		&p.Jurisdiction, &p.Notes, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return p, err
	}
	loc, err := scanLocation(lat, lng)
	p.Location = loc
	return p, err
}

func scanSubscriber(row scanner) (Subscriber, error) {
	var s Subscriber
	var lat, lng float64
	if err := row.Scan(
		&s.ID, &s.BusinessName, &s.BusinessType, &s.ServiceCategory,
		&s.ContactPerson, &s.Email, &s.Phone, &s.Address, &lat, &lng,
		&s.CollectionPointID, &s.Active, &s.CreatedAt, &s.UpdatedAt,
		&s.CollectionPointName, &s.Jurisdiction,
	); err != nil {
		return s, err
	}
	loc, err := scanLocation(lat, lng)
	s.Location = loc
	return s, err
}

func scanEvent(row scanner) (CollectionEvent, error) {
	var e CollectionEvent
	var crew []byte
	var lat, lng float64
	if err := row.Scan(
		&e.ID, &e.CollectionPointID, &e.WasteTypeID, &e.CollectedAt,
		&e.VolumeCubicMeters, &e.WeightTons, &crew, &e.Notes, &e.CreatedBy,
		&e.CreatedAt, &e.UpdatedAt,
		&e.CollectionPointName, &e.Jurisdiction, &e.WasteTypeName, &lat, &lng,
	); err != nil {
		return e, err
	}
	if err := json.Unmarshal(crew, &e.CrewMembers); err != nil {
		return e, fmt.Errorf("failed to decode crew members: %w", err)
	}
	loc, err := scanLocation(lat, lng)
	if err != nil {
		return e, err
	}
	e.PointLocation = &loc
	return e, nil
}

// ListPoints implements Repository.
func (r *PostgresRepository) ListPoints(ctx context.Context, c filter.Criteria) (_ []CollectionPoint, err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionPoint), tracing.DBOperationQuery)
	defer func() { done(err) }()

	where, args := filter.Where(nil, filter.Build(c, PointColumns), 1)
	rows, err := r.db.QueryContext(ctx, pointSelect+" "+where+" ORDER BY cp.name, cp.id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection points: %w", db.Classify(err))
	}
	defer rows.Close()

	points := []CollectionPoint{}
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection point: %w", db.Classify(err))
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection points: %w", db.Classify(err))
	}
	return points, nil
}

// GetPoint implements Repository.
func (r *PostgresRepository) GetPoint(ctx context.Context, id string) (_ *CollectionPoint, err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionPoint), tracing.DBOperationQuery)
	defer func() { done(err) }()

	if err = checkID(KindCollectionPoint, id); err != nil {
		return nil, err
	}
	p, err := scanPoint(r.db.QueryRowContext(ctx, pointSelect+" WHERE cp.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(KindCollectionPoint, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection point: %w", db.Classify(err))
	}
	return &p, nil
}

// CreatePoint implements Repository.
func (r *PostgresRepository) CreatePoint(ctx context.Context, p *CollectionPoint) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionPoint), tracing.DBOperationInsert)
	defer func() { done(err) }()

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO collection_points (name, address, location, local_government_area, notes, is_active)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326), $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Address, p.Location.Lng(), p.Location.Lat(), p.Jurisdiction, p.Notes, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert collection point: %w", db.Classify(err))
	}
	return nil
}

// UpdatePoint implements Repository.
func (r *PostgresRepository) UpdatePoint(ctx context.Context, p *CollectionPoint) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionPoint), tracing.DBOperationUpdate)
	defer func() { done(err) }()

	err = r.db.QueryRowContext(ctx, `
		UPDATE collection_points
		SET name = $1, address = $2, location = ST_SetSRID(ST_MakePoint($3, $4), 4326),
		    local_government_area = $5, notes = $6, is_active = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING created_at, updated_at`,
		p.Name, p.Address, p.Location.Lng(), p.Location.Lat(), p.Jurisdiction, p.Notes, p.Active, p.ID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(KindCollectionPoint, p.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update collection point: %w", db.Classify(err))
	}
	return nil
}

// DeactivatePoint implements Repository.
func (r *PostgresRepository) DeactivatePoint(ctx context.Context, id string) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionPoint), tracing.DBOperationUpdate)
	defer func() { done(err) }()

	err = r.execOne(ctx, KindCollectionPoint, id,
		`UPDATE collection_points SET is_active = false, updated_at = NOW() WHERE id = $1`)
	return err
}

// execOne runs a single-row statement keyed by id and maps zero affected
// rows to ErrNotFound.
func (r *PostgresRepository) execOne(ctx context.Context, kind EntityKind, id, query string) error {
	if err := checkID(kind, id); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to modify %s: %w", kind, db.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", db.Classify(err))
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}

// ListSubscribers implements Repository.
func (r *PostgresRepository) ListSubscribers(ctx context.Context, c filter.Criteria) (_ []Subscriber, err error) {
	ctx, done := r.metrics.Track(ctx, string(KindSubscriber), tracing.DBOperationQuery)
	defer func() { done(err) }()

	where, args := filter.Where(nil, filter.Build(c, SubscriberColumns), 1)
	rows, err := r.db.QueryContext(ctx, subscriberSelect+" "+where+" ORDER BY s.business_name, s.id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", db.Classify(err))
	}
	defer rows.Close()

	subs := []Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", db.Classify(err))
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscribers: %w", db.Classify(err))
	}
	return subs, nil
}

// GetSubscriber implements Repository.
func (r *PostgresRepository) GetSubscriber(ctx context.Context, id string) (_ *Subscriber, err error) {
	ctx, done := r.metrics.Track(ctx, string(KindSubscriber), tracing.DBOperationQuery)
	defer func() { done(err) }()

	if err = checkID(KindSubscriber, id); err != nil {
		return nil, err
	}
	s, err := scanSubscriber(r.db.QueryRowContext(ctx, subscriberSelect+" WHERE s.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(KindSubscriber, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", db.Classify(err))
	}
	return &s, nil
}

func nullUUID(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateSubscriber implements Repository.
func (r *PostgresRepository) CreateSubscriber(ctx context.Context, s *Subscriber) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindSubscriber), tracing.DBOperationInsert)
	defer func() { done(err) }()

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO subscribers (
			business_name, business_type, service_category, contact_person, email, phone,
			address, location, collection_point_id, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, ST_SetSRID(ST_MakePoint($8, $9), 4326), $10, $11)
		RETURNING id, created_at, updated_at`,
		s.BusinessName, s.BusinessType, s.ServiceCategory, s.ContactPerson, s.Email, s.Phone,
		s.Address, s.Location.Lng(), s.Location.Lat(), s.CollectionPointID, s.Active,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert subscriber: %w", db.Classify(err))
	}
	return nil
}

// UpdateSubscriber implements Repository.
func (r *PostgresRepository) UpdateSubscriber(ctx context.Context, s *Subscriber) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindSubscriber), tracing.DBOperationUpdate)
	defer func() { done(err) }()

	err = r.db.QueryRowContext(ctx, `
		UPDATE subscribers
		SET business_name = $1, business_type = $2, service_category = $3,
		    contact_person = $4, email = $5, phone = $6, address = $7,
		    location = ST_SetSRID(ST_MakePoint($8, $9), 4326),
		    collection_point_id = $10, is_active = $11, updated_at = NOW()
		WHERE id = $12
		RETURNING created_at, updated_at`,
		s.BusinessName, s.BusinessType, s.ServiceCategory, s.ContactPerson, s.Email, s.Phone,
		s.Address, s.Location.Lng(), s.Location.Lat(), s.CollectionPointID, s.Active, s.ID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(KindSubscriber, s.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update subscriber: %w", db.Classify(err))
	}
	return nil
}

// DeactivateSubscriber implements Repository.
func (r *PostgresRepository) DeactivateSubscriber(ctx context.Context, id string) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindSubscriber), tracing.DBOperationUpdate)
	defer func() { done(err) }()

	err = r.execOne(ctx, KindSubscriber, id,
		`UPDATE subscribers SET is_active = false, updated_at = NOW() WHERE id = $1`)
	return err
}

// BusinessTypes implements Repository.
func (r *PostgresRepository) BusinessTypes(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "business_type")
}

// ServiceCategories implements Repository.
func (r *PostgresRepository) ServiceCategories(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, "service_category")
}

// distinct lists the values of a subscriber column. column is trusted text.
func (r *PostgresRepository) distinct(ctx context.Context, column string) (_ []string, err error) {
	ctx, done := r.metrics.Track(ctx, string(KindSubscriber), tracing.DBOperationQuery)
	defer func() { done(err) }()

	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT "+column+" FROM subscribers WHERE "+column+" <> '' ORDER BY "+column)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s values: %w", column, db.Classify(err))
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, db.Classify(err))
		}
		values = append(values, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s values: %w", column, db.Classify(err))
	}
	return values, nil
}

// ListEvents implements Repository.
func (r *PostgresRepository) ListEvents(ctx context.Context, c filter.Criteria) (_ []CollectionEvent, err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionEvent), tracing.DBOperationQuery)
	defer func() { done(err) }()

	where, args := filter.Where(nil, filter.Build(c, EventColumns), 1)
	rows, err := r.db.QueryContext(ctx, eventSelect+" "+where+" ORDER BY ce.collection_date DESC, ce.id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection events: %w", db.Classify(err))
	}
	defer rows.Close()

	events := []CollectionEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection event: %w", db.Classify(err))
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collection events: %w", db.Classify(err))
	}
	return events, nil
}

// GetEvent implements Repository.
func (r *PostgresRepository) GetEvent(ctx context.Context, id string) (_ *CollectionEvent, err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionEvent), tracing.DBOperationQuery)
	defer func() { done(err) }()

	return r.getEvent(ctx, id)
}

func (r *PostgresRepository) getEvent(ctx context.Context, id string) (*CollectionEvent, error) {
	if err := checkID(KindCollectionEvent, id); err != nil {
		return nil, err
	}
	e, err := scanEvent(r.db.QueryRowContext(ctx, eventSelect+" WHERE ce.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(KindCollectionEvent, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection event: %w", db.Classify(err))
	}
	return &e, nil
}

func crewJSON(crew []string) (string, error) {
	if crew == nil {
		crew = []string{}
	}
	b, err := json.Marshal(crew)
	if err != nil {
		return "", fmt.Errorf("failed to encode crew members: %w", err)
	}
	return string(b), nil
}

// CreateEvent implements Repository. Missing points or waste types surface
// as ErrReferentialViolation from the foreign keys.
func (r *PostgresRepository) CreateEvent(ctx context.Context, e *CollectionEvent) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionEvent), tracing.DBOperationInsert)
	defer func() { done(err) }()

	crew, err := crewJSON(e.CrewMembers)
	if err != nil {
		return err
	}

	var id string
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO collection_events (
			collection_point_id, waste_type_id, collection_date, volume_cubic_meters,
			weight_tons, crew_members, notes, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		e.CollectionPointID, e.WasteTypeID, e.CollectedAt, e.VolumeCubicMeters,
		e.WeightTons, crew, e.Notes, nullUUID(e.CreatedBy),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert collection event: %w", db.Classify(err))
	}

	stored, err := r.getEvent(ctx, id)
	if err != nil {
		return err
	}
	*e = *stored
	return nil
}

// UpdateEvent implements Repository. Only the measurement fields change.
func (r *PostgresRepository) UpdateEvent(ctx context.Context, e *CollectionEvent) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionEvent), tracing.DBOperationUpdate)
	defer func() { done(err) }()

	crew, err := crewJSON(e.CrewMembers)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE collection_events
		SET collection_date = $1, volume_cubic_meters = $2, weight_tons = $3,
		    crew_members = $4, notes = $5, updated_at = NOW()
		WHERE id = $6`,
		e.CollectedAt, e.VolumeCubicMeters, e.WeightTons, crew, e.Notes, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update collection event: %w", db.Classify(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(KindCollectionEvent, e.ID)
	}

	stored, err := r.getEvent(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *stored
	return nil
}

// DeleteEvent implements Repository.
func (r *PostgresRepository) DeleteEvent(ctx context.Context, id string) (err error) {
	ctx, done := r.metrics.Track(ctx, string(KindCollectionEvent), tracing.DBOperationDelete)
	defer func() { done(err) }()

	err = r.execOne(ctx, KindCollectionEvent, id, `DELETE FROM collection_events WHERE id = $1`)
	return err
}

// ListWasteTypes implements Repository.
func (r *PostgresRepository) ListWasteTypes(ctx context.Context) (_ []WasteType, err error) {
	ctx, done := r.metrics.Track(ctx, string(KindWasteType), tracing.DBOperationQuery)
	defer func() { done(err) }()

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, '') FROM waste_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list waste types: %w", db.Classify(err))
	}
	defer rows.Close()

	types := []WasteType{}
	for rows.Next() {
		var wt WasteType
		if err := rows.Scan(&wt.ID, &wt.Name, &wt.Description); err != nil {
			return nil, fmt.Errorf("failed to scan waste type: %w", db.Classify(err))
		}
		types = append(types, wt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating waste types: %w", db.Classify(err))
	}
	return types, nil
}

// ActiveNear implements Repository. The envelope is added only when the
// caller supplies a box; ST_DWithin on geography does the radius cut and a
// positive Limit becomes ORDER BY distance ... LIMIT.
func (r *PostgresRepository) ActiveNear(ctx context.Context, kind EntityKind, area SearchArea) (_ []Locatable, err error) {
	ctx, done := r.metrics.Track(ctx, string(kind), tracing.DBOperationQuery)
	defer func() { done(err) }()

	var base, alias string
	switch kind {
	case KindCollectionPoint:
		base, alias = pointSelect, "cp"
	case KindSubscriber:
		base, alias = subscriberSelect, "s"
	default:
		return nil, fmt.Errorf("%w: %s has no location", apperr.ErrInvalidQuery, kind)
	}

	args := []any{area.Center.Lng(), area.Center.Lat(), area.RadiusMeters * proximityPadding}
	conds := []string{
		alias + ".is_active = true",
		fmt.Sprintf("ST_DWithin(%s.location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)", alias),
	}
	var preds []filter.Predicate
	if area.Box != nil {
		b := area.Box
		preds = append(preds, filter.Predicate{
			Key:      filter.KeyBounds,
			Fragment: alias + ".location && ST_MakeEnvelope(?, ?, ?, ?, 4326)",
			Args:     []any{b.MinLng, b.MinLat, b.MaxLng, b.MaxLat},
		})
	}
	where, extra := filter.Where(conds, preds, len(args)+1)
	args = append(args, extra...)

	query := base + " " + where
	if area.Limit > 0 {
		args = append(args, area.Limit)
		query += fmt.Sprintf(`
		ORDER BY ST_Distance(%[1]s.location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography), %[1]s.id
		LIMIT $%[2]d`, alias, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s near point: %w", kind, db.Classify(err))
	}
	defer rows.Close()

	var out []Locatable
	for rows.Next() {
		var l Locatable
		if kind == KindCollectionPoint {
			l, err = scanPoint(rows)
		} else {
			l, err = scanSubscriber(rows)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, db.Classify(err))
		}
		out = append(out, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", kind, db.Classify(err))
	}
	return out, nil
}
