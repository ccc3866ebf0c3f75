// Package dbtest starts a disposable PostGIS container with the wastemap
// schema applied, for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/onnwee/wastemap/internal/db"
)

// Image is the PostGIS image the integration tests run against.
const Image = "postgis/postgis:16-3.4-alpine"

// migrationPath locates the init migration relative to this file so tests
// work from any package directory.
func migrationPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations", "000001_init.up.sql")
}

// StartPostGIS runs a PostGIS container, applies the schema and returns an
// open pool. The container is terminated when the test ends.
func StartPostGIS(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, Image,
		tcpostgres.WithDatabase("wastemap"),
		tcpostgres.WithUsername("wastemap"),
		tcpostgres.WithPassword("wastemap"),
		tcpostgres.WithInitScripts(migrationPath()),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgis container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgis connection string: %v", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	conn, err := db.Open(openCtx, db.Config{URL: url, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("failed to open postgis: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// WasteTypeID returns the id of a seeded waste type by name.
func WasteTypeID(t *testing.T, conn *sql.DB, name string) string {
	t.Helper()
	var id string
	if err := conn.QueryRow(`SELECT id FROM waste_types WHERE name = $1`, name).Scan(&id); err != nil {
		t.Fatalf("failed to look up waste type %s: %v", name, err)
	}
	return id
}
