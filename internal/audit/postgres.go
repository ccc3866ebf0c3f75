package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/onnwee/wastemap/internal/db"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/tracing"
)

const table = "audit_logs"

// PostgresRepository implements Repository on the audit_logs table.
type PostgresRepository struct {
	db      *sql.DB
	metrics *db.Metrics
}

// NewPostgresRepository creates a PostgresRepository. metrics may be nil.
func NewPostgresRepository(conn *sql.DB, metrics *db.Metrics) *PostgresRepository {
	return &PostgresRepository{db: conn, metrics: metrics}
}

// Log implements Repository.
func (r *PostgresRepository) Log(ctx context.Context, entry LogEntry) (_ *Entry, err error) {
	ctx, done := r.metrics.Track(ctx, table, tracing.DBOperationInsert)
	defer func() { done(err) }()

	query := `
		INSERT INTO audit_logs (
			user_id, action, table_name, record_id, changes, ip_address, request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	e := Entry{
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Changes:    entry.Changes,
		IPAddress:  entry.IPAddress,
		RequestID:  entry.RequestID,
	}

	var changes any
	if len(entry.Changes) > 0 {
		changes = string(entry.Changes)
	}

	err = r.db.QueryRowContext(ctx, query,
		nullString(entry.ActorID),
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		changes,
		nullString(entry.IPAddress),
		nullString(entry.RequestID),
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to write audit log: %w", db.Classify(err))
	}
	return &e, nil
}

// Query implements Repository.
func (r *PostgresRepository) Query(ctx context.Context, c filter.Criteria, limit int) (_ []Entry, err error) {
	ctx, done := r.metrics.Track(ctx, table, tracing.DBOperationQuery)
	defer func() { done(err) }()

	where, args := filter.Where(nil, filter.Build(c, Columns), 1)
	query := `
		SELECT al.id, COALESCE(al.user_id::text, ''), al.action, al.table_name, al.record_id,
		       COALESCE(al.changes::text, ''), COALESCE(al.ip_address, ''),
		       COALESCE(al.request_id, ''), al.created_at
		FROM audit_logs al
		` + where + `
		ORDER BY al.created_at DESC, al.id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", db.Classify(err))
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var changes string
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID,
			&changes, &e.IPAddress, &e.RequestID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", db.Classify(err))
		}
		if changes != "" {
			e.Changes = []byte(changes)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", db.Classify(err))
	}
	return entries, nil
}

// AnonymizeBefore implements Repository. Rows are locked and rewritten in
// one transaction.
func (r *PostgresRepository) AnonymizeBefore(ctx context.Context, cutoff time.Time) (_ int, err error) {
	ctx, done := r.metrics.Track(ctx, table, tracing.DBOperationUpdate)
	defer func() { done(err) }()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", db.Classify(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, ip_address
		FROM audit_logs
		WHERE created_at < $1
		  AND ip_anonymized_at IS NULL
		  AND ip_address IS NOT NULL
		FOR UPDATE`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to select audit logs for anonymization: %w", db.Classify(err))
	}

	type pending struct{ id, ip string }
	var batch []pending
	for rows.Next() {
		var p pending
		if err = rows.Scan(&p.id, &p.ip); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan audit log: %w", db.Classify(err))
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating audit logs: %w", db.Classify(err))
	}

	for _, p := range batch {
		if _, err = tx.ExecContext(ctx,
			`UPDATE audit_logs SET ip_address = $1, ip_anonymized_at = NOW() WHERE id = $2`,
			nullString(AnonymizeIP(p.ip)), p.id,
		); err != nil {
			return 0, fmt.Errorf("failed to anonymize audit log %s: %w", p.id, db.Classify(err))
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit anonymization: %w", db.Classify(err))
	}
	return len(batch), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
