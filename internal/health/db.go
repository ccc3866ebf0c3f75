// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/wastemap/internal/db"
)

// DBChecker reports whether the database accepts queries and still has
// PostGIS installed.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a new database health checker.
func NewDBChecker(conn *sql.DB) *DBChecker {
	return &DBChecker{db: conn}
}

// HealthCheck pings the pool and queries the PostGIS version.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", db.Classify(err))
	}
	if _, err := db.PostGISVersion(ctx, d.db); err != nil {
		return err
	}
	return nil
}
