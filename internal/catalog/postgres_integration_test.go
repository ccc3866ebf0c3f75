//go:build integration

// Integration tests for the PostGIS repository. They start a postgis/postgis
// container through testcontainers, so Docker must be available.
// Run with: go test -tags=integration -v ./internal/catalog/...
package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/db/dbtest"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/proximity"
)

func coord(v float64) *float64 { return &v }

func newPostgresService(t *testing.T) (*catalog.Service, *catalog.PostgresRepository, string) {
	t.Helper()
	conn := dbtest.StartPostGIS(t)
	repo := catalog.NewPostgresRepository(conn, nil)
	return catalog.NewService(repo, nil, nil, nil), repo, dbtest.WasteTypeID(t, conn, "organic")
}

func TestPostgres_PointLifecycle(t *testing.T) {
	svc, _, _ := newPostgresService(t)
	ctx := context.Background()

	p, err := svc.CreatePoint(ctx, catalog.PointInput{
		Name: "Ikeja Depot", Address: "Obafemi Awolowo Way", Latitude: coord(6.6018), Longitude: coord(3.3515),
		LocalGovernmentArea: "Ikeja",
	})
	if err != nil {
		t.Fatalf("CreatePoint() error = %v", err)
	}
	if p.ID == "" || p.CreatedAt.IsZero() || !p.Active {
		t.Fatalf("expected stored point with id, timestamps and active flag, got %+v", p)
	}

	got, err := svc.GetPoint(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPoint() error = %v", err)
	}
	if got.Location.Lat() != 6.6018 || got.Location.Lng() != 3.3515 {
		t.Errorf("location round trip mismatch: %v", got.Location)
	}

	if err := svc.DeactivatePoint(ctx, p.ID); err != nil {
		t.Fatalf("DeactivatePoint() error = %v", err)
	}
	got, err = svc.GetPoint(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPoint() error = %v", err)
	}
	if got.Active {
		t.Error("expected point to be inactive after deactivation")
	}
}

func TestPostgres_NotFound(t *testing.T) {
	svc, _, _ := newPostgresService(t)
	ctx := context.Background()

	for _, id := range []string{"not-a-uuid", "9b2f1c3e-52a4-4c1e-9d8b-0f6d3c2a1b00"} {
		if _, err := svc.GetPoint(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("GetPoint(%q) error = %v, want ErrNotFound", id, err)
		}
		if err := svc.DeleteEvent(ctx, id); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("DeleteEvent(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestPostgres_EventsAndFilters(t *testing.T) {
	svc, _, organic := newPostgresService(t)
	ctx := context.Background()

	ikeja, err := svc.CreatePoint(ctx, catalog.PointInput{Name: "Ikeja", Latitude: coord(6.6018), Longitude: coord(3.3515), LocalGovernmentArea: "Ikeja"})
	if err != nil {
		t.Fatalf("CreatePoint() error = %v", err)
	}
	lekki, err := svc.CreatePoint(ctx, catalog.PointInput{Name: "Lekki", Latitude: coord(6.4474), Longitude: coord(3.4723), LocalGovernmentArea: "Eti-Osa"})
	if err != nil {
		t.Fatalf("CreatePoint() error = %v", err)
	}

	for _, in := range []catalog.EventInput{
		{CollectionPointID: ikeja.ID, WasteTypeID: organic, CollectionDate: "2024-01-05", VolumeCubicMeters: 2, WeightTons: 1, CrewMembers: []string{"Ada", "Tunde"}},
		{CollectionPointID: ikeja.ID, WasteTypeID: organic, CollectionDate: "2024-02-01", VolumeCubicMeters: 4, WeightTons: 2},
		{CollectionPointID: lekki.ID, WasteTypeID: organic, CollectionDate: "2024-01-20", VolumeCubicMeters: 1, WeightTons: 0.5},
	} {
		if _, err := svc.CreateEvent(ctx, in); err != nil {
			t.Fatalf("CreateEvent() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		values filter.Values
		want   int
	}{
		{"no filters", filter.Values{}, 3},
		{"jurisdiction", filter.Values{filter.KeyJurisdiction: "Ikeja"}, 2},
		{"january", filter.Values{filter.KeyStartDate: "2024-01-01", filter.KeyEndDate: "2024-01-31"}, 2},
		{"point and range", filter.Values{filter.KeyCollectionPoint: ikeja.ID, filter.KeyEndDate: "2024-01-31"}, 1},
		{"bounds", filter.Values{filter.KeyBounds: "6.5,3.3,6.7,3.4"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := svc.List(ctx, catalog.KindCollectionEvent, tt.values)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(l.Events) != tt.want {
				t.Errorf("expected %d events, got %d", tt.want, len(l.Events))
			}
		})
	}

	l, err := svc.List(ctx, catalog.KindCollectionEvent, filter.Values{filter.KeyStartDate: "2024-01-05", filter.KeyEndDate: "2024-01-05"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(l.Events) != 1 || len(l.Events[0].CrewMembers) != 2 {
		t.Errorf("expected one event with its crew, got %+v", l.Events)
	}
}

func TestPostgres_ReferentialViolation(t *testing.T) {
	svc, _, organic := newPostgresService(t)

	_, err := svc.CreateEvent(context.Background(), catalog.EventInput{
		CollectionPointID: "9b2f1c3e-52a4-4c1e-9d8b-0f6d3c2a1b00",
		WasteTypeID:       organic,
		CollectionDate:    "2024-01-05",
	})
	if !errors.Is(err, apperr.ErrReferentialViolation) {
		t.Errorf("expected ErrReferentialViolation, got %v", err)
	}
}

func TestPostgres_Nearby(t *testing.T) {
	svc, repo, _ := newPostgresService(t)
	ctx := context.Background()

	near, err := svc.CreatePoint(ctx, catalog.PointInput{Name: "Near", Latitude: coord(6.5250), Longitude: coord(3.3800), LocalGovernmentArea: "Lagos Island"})
	if err != nil {
		t.Fatalf("CreatePoint() error = %v", err)
	}
	if _, err := svc.CreatePoint(ctx, catalog.PointInput{Name: "Far", Latitude: coord(6.6018), Longitude: coord(3.3515), LocalGovernmentArea: "Ikeja"}); err != nil {
		t.Fatalf("CreatePoint() error = %v", err)
	}
	closed, err := svc.CreatePoint(ctx, catalog.PointInput{Name: "Closed", Latitude: coord(6.5245), Longitude: coord(3.3793), LocalGovernmentArea: "Lagos Island"})
	if err != nil {
		t.Fatalf("CreatePoint() error = %v", err)
	}
	if err := svc.DeactivatePoint(ctx, closed.ID); err != nil {
		t.Fatalf("DeactivatePoint() error = %v", err)
	}

	q, err := proximity.NewQuery(catalog.KindCollectionPoint, 6.5244, 3.3792, 2000, 0)
	if err != nil {
		t.Fatalf("NewQuery() error = %v", err)
	}
	matches, err := proximity.NewEngine(repo).Nearby(ctx, q)
	if err != nil {
		t.Fatalf("Nearby() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected only the active point within 2km, got %d", len(matches))
	}
	if p, ok := matches[0].Entity.(catalog.CollectionPoint); !ok || p.ID != near.ID {
		t.Errorf("expected %s, got %+v", near.ID, matches[0].Entity)
	}

	candidates, err := repo.ActiveNear(ctx, catalog.KindCollectionPoint, catalog.SearchArea{
		Center: q.Center, RadiusMeters: 20000, Limit: 1,
	})
	if err != nil {
		t.Fatalf("ActiveNear() error = %v", err)
	}
	if len(candidates) != 1 || candidates[0].EntityID() != near.ID {
		t.Errorf("expected only the nearest active point with Limit 1, got %+v", candidates)
	}
}
