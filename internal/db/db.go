// Package db opens the PostGIS-backed connection pool and classifies store
// errors into the kinds the rest of wastemap understands.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostGISRequirement documents that the schema needs the PostGIS extension
// for the geometry(Point,4326) location columns.
const PostGISRequirement = "PostGIS extension is required for geo queries"

// VersionQuery verifies PostGIS is available.
const VersionQuery = "SELECT PostGIS_Version()"

// Config holds pool settings.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to Postgres, applies pool limits and checks PostGIS.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	conn, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if _, err := PostGISVersion(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// PostGISVersion returns the PostGIS version string reported by the server.
func PostGISVersion(ctx context.Context, conn *sql.DB) (string, error) {
	var version string
	if err := conn.QueryRowContext(ctx, VersionQuery).Scan(&version); err != nil {
		return "", fmt.Errorf("%s: %w", PostGISRequirement, Classify(err))
	}
	return version, nil
}
