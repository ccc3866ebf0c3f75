package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/audit"
	"github.com/onnwee/wastemap/internal/export"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/geo"
	"github.com/onnwee/wastemap/internal/requestctx"
)

type recordingHook struct {
	mu      sync.Mutex
	changes []audit.Change
}

func (h *recordingHook) AfterCommit(_ context.Context, c audit.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, c)
}

func (h *recordingHook) actions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.changes))
	for i, c := range h.changes {
		out[i] = c.Action + ":" + c.EntityType
	}
	return out
}

func newTestService(t *testing.T) (*Service, *InMemoryRepository, *recordingHook) {
	t.Helper()
	repo := NewInMemoryRepository()
	hook := &recordingHook{}
	return NewService(repo, hook, time.UTC, nil), repo, hook
}

func boolPtr(b bool) *bool { return &b }

func coord(v float64) *float64 { return &v }

func mustCreatePoint(t *testing.T, s *Service, name, lga string, lat, lng float64) *CollectionPoint {
	t.Helper()
	p, err := s.CreatePoint(context.Background(), PointInput{
		Name: name, Address: name + " road", Latitude: coord(lat), Longitude: coord(lng), LocalGovernmentArea: lga,
	})
	if err != nil {
		t.Fatalf("CreatePoint(%s) error = %v", name, err)
	}
	return p
}

func TestService_CreatePoint_Validation(t *testing.T) {
	s, _, hook := newTestService(t)

	tests := []struct {
		name string
		in   PointInput
	}{
		{"missing name", PointInput{Latitude: coord(6.5), Longitude: coord(3.3), LocalGovernmentArea: "Ikeja"}},
		{"missing lga", PointInput{Name: "A", Latitude: coord(6.5), Longitude: coord(3.3)}},
		{"latitude out of range", PointInput{Name: "A", Latitude: coord(91), Longitude: coord(3.3), LocalGovernmentArea: "Ikeja"}},
		{"missing coordinates", PointInput{Name: "A", LocalGovernmentArea: "Ikeja"}},
		{"missing longitude", PointInput{Name: "A", Latitude: coord(6.5), LocalGovernmentArea: "Ikeja"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreatePoint(context.Background(), tt.in)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("CreatePoint() error = %v, want ErrInvalidInput", err)
			}
		})
	}
	if len(hook.actions()) != 0 {
		t.Errorf("failed creates must not be audited, got %v", hook.actions())
	}
}

func TestService_PointLifecycle(t *testing.T) {
	s, _, hook := newTestService(t)
	ctx := context.Background()

	p := mustCreatePoint(t, s, "Alausa", "Ikeja", 6.6, 3.35)
	if p.ID == "" || !p.Active {
		t.Fatalf("created point = %+v", p)
	}

	updated, err := s.UpdatePoint(ctx, p.ID, PointInput{
		Name: "Alausa Depot", Latitude: coord(6.6), Longitude: coord(3.35), LocalGovernmentArea: "Ikeja",
	})
	if err != nil {
		t.Fatalf("UpdatePoint() error = %v", err)
	}
	if updated.Name != "Alausa Depot" || !updated.Active {
		t.Errorf("updated point = %+v", updated)
	}

	if err := s.DeactivatePoint(ctx, p.ID); err != nil {
		t.Fatalf("DeactivatePoint() error = %v", err)
	}
	got, err := s.GetPoint(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPoint() error = %v", err)
	}
	if got.Active {
		t.Error("point still active after DeactivatePoint")
	}

	want := []string{"create:collection_points", "update:collection_points", "deactivate:collection_points"}
	if strings.Join(hook.actions(), ",") != strings.Join(want, ",") {
		t.Errorf("audited = %v, want %v", hook.actions(), want)
	}
}

func TestService_NotFound(t *testing.T) {
	s, _, hook := newTestService(t)
	ctx := context.Background()
	missing := "00000000-0000-0000-0000-000000000001"

	if _, err := s.GetPoint(ctx, missing); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetPoint() error = %v, want ErrNotFound", err)
	}
	if err := s.DeactivateSubscriber(ctx, missing); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("DeactivateSubscriber() error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteEvent(ctx, missing); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("DeleteEvent() error = %v, want ErrNotFound", err)
	}
	if len(hook.actions()) != 0 {
		t.Errorf("audited = %v, want none", hook.actions())
	}
}

func TestService_EventReferences(t *testing.T) {
	s, repo, _ := newTestService(t)
	ctx := context.Background()

	p := mustCreatePoint(t, s, "Alausa", "Ikeja", 6.6, 3.35)
	organic := repo.AddWasteType(WasteType{Name: "organic"})

	tests := []struct {
		name    string
		pointID string
		wasteID string
	}{
		{"missing point", "00000000-0000-0000-0000-000000000001", organic.ID},
		{"missing waste type", p.ID, "00000000-0000-0000-0000-000000000002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateEvent(ctx, EventInput{
				CollectionPointID: tt.pointID,
				WasteTypeID:       tt.wasteID,
				CollectionDate:    "2024-01-05",
				WeightTons:        1,
			})
			if !errors.Is(err, apperr.ErrReferentialViolation) {
				t.Errorf("CreateEvent() error = %v, want ErrReferentialViolation", err)
			}
		})
	}

	// Deactivated points still accept events.
	if err := s.DeactivatePoint(ctx, p.ID); err != nil {
		t.Fatalf("DeactivatePoint() error = %v", err)
	}
	_, err := s.CreateEvent(ctx, EventInput{
		CollectionPointID: p.ID, WasteTypeID: organic.ID, CollectionDate: "2024-01-05", WeightTons: 1,
	})
	if err != nil {
		t.Errorf("CreateEvent() on inactive point error = %v", err)
	}
}

func TestService_EventLifecycle(t *testing.T) {
	s, repo, hook := newTestService(t)
	ctx := requestctx.WithActorID(context.Background(), "7d0c9a9e-5f8a-4b3e-9a51-3c2f0b1d4e6f")

	p := mustCreatePoint(t, s, "Alausa", "Ikeja", 6.6, 3.35)
	organic := repo.AddWasteType(WasteType{Name: "organic"})

	e, err := s.CreateEvent(ctx, EventInput{
		CollectionPointID: p.ID,
		WasteTypeID:       organic.ID,
		CollectionDate:    "2024-01-05",
		VolumeCubicMeters: 3,
		WeightTons:        1.2,
		CrewMembers:       []string{"Ade", " ", "Bola"},
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if e.CreatedBy != "7d0c9a9e-5f8a-4b3e-9a51-3c2f0b1d4e6f" {
		t.Errorf("CreatedBy = %q", e.CreatedBy)
	}
	if len(e.CrewMembers) != 2 {
		t.Errorf("CrewMembers = %v, want blanks dropped", e.CrewMembers)
	}
	if e.WasteTypeName != "organic" || e.Jurisdiction != "Ikeja" {
		t.Errorf("joined fields = %q, %q", e.WasteTypeName, e.Jurisdiction)
	}

	updated, err := s.UpdateEvent(ctx, e.ID, EventInput{
		CollectionPointID: "ignored",
		CollectionDate:    "2024-01-06T10:00:00Z",
		WeightTons:        2,
	})
	if err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}
	if updated.CollectionPointID != p.ID || updated.WeightTons != 2 {
		t.Errorf("updated event = %+v", updated)
	}

	if err := s.DeleteEvent(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	if _, err := s.GetEvent(ctx, e.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetEvent() after delete error = %v, want ErrNotFound", err)
	}

	actions := hook.actions()
	if actions[len(actions)-1] != "delete:collection_events" {
		t.Errorf("last audited = %v", actions)
	}
}

func TestService_EventInputValidation(t *testing.T) {
	s, _, _ := newTestService(t)

	tests := []struct {
		name string
		in   EventInput
	}{
		{"missing ids", EventInput{CollectionDate: "2024-01-05"}},
		{"bad point id", EventInput{CollectionPointID: "12", WasteTypeID: "00000000-0000-0000-0000-000000000002", CollectionDate: "2024-01-05"}},
		{"bad date", EventInput{CollectionPointID: "00000000-0000-0000-0000-000000000001", WasteTypeID: "00000000-0000-0000-0000-000000000002", CollectionDate: "05/01/2024"}},
		{"negative weight", EventInput{CollectionPointID: "00000000-0000-0000-0000-000000000001", WasteTypeID: "00000000-0000-0000-0000-000000000002", CollectionDate: "2024-01-05", WeightTons: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateEvent(context.Background(), tt.in); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("CreateEvent() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestService_SubscriberRequiresPoint(t *testing.T) {
	s, repo, hook := newTestService(t)
	ctx := context.Background()
	p := mustCreatePoint(t, s, "Alausa", "Ikeja", 6.6, 3.35)

	in := SubscriberInput{
		BusinessName: "Mama Put", BusinessType: "restaurant", ServiceCategory: "commercial",
		Latitude: coord(6.6), Longitude: coord(3.35),
	}
	_, err := s.CreateSubscriber(ctx, in)
	if !errors.Is(err, apperr.ErrInvalidInput) || !strings.Contains(err.Error(), "collectionPointId is required") {
		t.Fatalf("CreateSubscriber() error = %v, want collectionPointId required", err)
	}

	in.CollectionPointID = p.ID
	sub, err := s.CreateSubscriber(ctx, in)
	if err != nil {
		t.Fatalf("CreateSubscriber() error = %v", err)
	}
	in.CollectionPointID = " "
	if _, err := s.UpdateSubscriber(ctx, sub.ID, in); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("UpdateSubscriber() error = %v, want ErrInvalidInput", err)
	}

	orphan := Subscriber{BusinessName: "Orphan", BusinessType: "bank", ServiceCategory: "commercial", Location: geo.MustLocation(6.6, 3.35)}
	if err := repo.CreateSubscriber(ctx, &orphan); !errors.Is(err, apperr.ErrReferentialViolation) {
		t.Errorf("repository CreateSubscriber() error = %v, want ErrReferentialViolation", err)
	}

	want := []string{"create:collection_points", "create:subscribers"}
	if strings.Join(hook.actions(), ",") != strings.Join(want, ",") {
		t.Errorf("audited = %v, want %v", hook.actions(), want)
	}
}

func TestService_SubscriberLifecycle(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	p := mustCreatePoint(t, s, "Alausa", "Ikeja", 6.6, 3.35)

	_, err := s.CreateSubscriber(ctx, SubscriberInput{
		BusinessName: "Bad", BusinessType: "bank", ServiceCategory: "commercial",
		Latitude: coord(6.6), Longitude: coord(3.35), CollectionPointID: "00000000-0000-0000-0000-000000000009",
	})
	if !errors.Is(err, apperr.ErrReferentialViolation) {
		t.Errorf("CreateSubscriber() error = %v, want ErrReferentialViolation", err)
	}

	_, err = s.CreateSubscriber(ctx, SubscriberInput{
		BusinessName: "Bad", BusinessType: "bank", ServiceCategory: "commercial",
		Latitude: coord(6.6), Longitude: coord(3.35), Email: "not-an-email",
	})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("CreateSubscriber() error = %v, want ErrInvalidInput", err)
	}

	sub, err := s.CreateSubscriber(ctx, SubscriberInput{
		BusinessName: "Mama Put", BusinessType: "restaurant", ServiceCategory: "commercial",
		Email: "mama@example.com", Latitude: coord(6.601), Longitude: coord(3.351), CollectionPointID: p.ID,
	})
	if err != nil {
		t.Fatalf("CreateSubscriber() error = %v", err)
	}
	if sub.CollectionPointName != "Alausa" || sub.Jurisdiction != "Ikeja" {
		t.Errorf("joined fields = %q, %q", sub.CollectionPointName, sub.Jurisdiction)
	}

	updated, err := s.UpdateSubscriber(ctx, sub.ID, SubscriberInput{
		BusinessName: "Mama Put", BusinessType: "restaurant", ServiceCategory: "commercial",
		Latitude: coord(6.601), Longitude: coord(3.351), CollectionPointID: p.ID, IsActive: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("UpdateSubscriber() error = %v", err)
	}
	if updated.Active || updated.CollectionPointID != p.ID {
		t.Errorf("updated subscriber = %+v", updated)
	}

	types, _ := s.BusinessTypes(ctx)
	if len(types) != 1 || types[0] != "restaurant" {
		t.Errorf("BusinessTypes() = %v", types)
	}
}

func TestService_List(t *testing.T) {
	s, repo, _ := newTestService(t)
	ctx := context.Background()

	ikeja := mustCreatePoint(t, s, "Alausa", "Ikeja", 6.6, 3.35)
	surulere := mustCreatePoint(t, s, "Bode Thomas", "Surulere", 6.49, 3.35)
	if err := s.DeactivatePoint(ctx, surulere.ID); err != nil {
		t.Fatal(err)
	}
	organic := repo.AddWasteType(WasteType{Name: "organic"})

	for _, ev := range []struct {
		point, date string
	}{
		{ikeja.ID, "2024-01-05"},
		{ikeja.ID, "2024-01-31"},
		{surulere.ID, "2024-02-01"},
	} {
		if _, err := s.CreateEvent(ctx, EventInput{
			CollectionPointID: ev.point, WasteTypeID: organic.ID, CollectionDate: ev.date, WeightTons: 1,
		}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("points include inactive", func(t *testing.T) {
		l, err := s.List(ctx, KindCollectionPoint, nil)
		if err != nil {
			t.Fatal(err)
		}
		if l.Len() != 2 || l.Points[0].Name != "Alausa" {
			t.Errorf("points = %+v", l.Points)
		}
	})

	t.Run("points by jurisdiction", func(t *testing.T) {
		l, err := s.List(ctx, KindCollectionPoint, filter.Values{filter.KeyJurisdiction: "Surulere"})
		if err != nil {
			t.Fatal(err)
		}
		if l.Len() != 1 || l.Points[0].ID != surulere.ID {
			t.Errorf("points = %+v", l.Points)
		}
	})

	t.Run("events in january newest first", func(t *testing.T) {
		l, err := s.List(ctx, KindCollectionEvent, filter.Values{
			filter.KeyStartDate: "2024-01-01", filter.KeyEndDate: "2024-01-31",
		})
		if err != nil {
			t.Fatal(err)
		}
		if l.Len() != 2 {
			t.Fatalf("events = %d, want 2", l.Len())
		}
		if !l.Events[0].CollectedAt.After(l.Events[1].CollectedAt) {
			t.Error("events not ordered newest first")
		}
	})

	t.Run("events within bounds", func(t *testing.T) {
		l, err := s.List(ctx, KindCollectionEvent, filter.Values{filter.KeyBounds: "6.4,3.3,6.55,3.4"})
		if err != nil {
			t.Fatal(err)
		}
		if l.Len() != 1 || l.Events[0].CollectionPointID != surulere.ID {
			t.Errorf("events = %+v", l.Events)
		}
	})

	t.Run("malformed filter", func(t *testing.T) {
		_, err := s.List(ctx, KindCollectionEvent, filter.Values{filter.KeyBounds: "1,2,3"})
		if !errors.Is(err, apperr.ErrMalformedFilter) {
			t.Errorf("List() error = %v, want ErrMalformedFilter", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := s.List(ctx, EntityKind("users"), nil)
		if !errors.Is(err, apperr.ErrInvalidQuery) {
			t.Errorf("List() error = %v, want ErrInvalidQuery", err)
		}
	})

	t.Run("csv export", func(t *testing.T) {
		l, err := s.List(ctx, KindCollectionEvent, nil)
		if err != nil {
			t.Fatal(err)
		}
		out, err := export.ToDelimitedText(l.Rows(), Schema(l.Kind))
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 4 || !strings.HasPrefix(lines[0], "ID,Collection Date") {
			t.Errorf("csv =\n%s", out)
		}
		if !strings.Contains(out, "2024-02-01") {
			t.Errorf("csv missing date-only collection date:\n%s", out)
		}
	})
}

func TestInMemoryRepository_ActiveNear(t *testing.T) {
	s, repo, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreatePoint(t, s, "A", "Ikeja", 6.5, 3.3)
	b := mustCreatePoint(t, s, "B", "Ikeja", 7.5, 3.3)
	c := mustCreatePoint(t, s, "C", "Ikeja", 6.5001, 3.3)
	if err := s.DeactivatePoint(ctx, c.ID); err != nil {
		t.Fatal(err)
	}

	box := geo.BoundingBox(geo.MustLocation(6.5, 3.3), 1000)
	got, err := repo.ActiveNear(ctx, KindCollectionPoint, SearchArea{
		Center: geo.MustLocation(6.5, 3.3), RadiusMeters: 1000, Box: &box,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].EntityID() != a.ID {
		t.Errorf("ActiveNear() = %v, want only %s (not %s)", got, a.ID, b.ID)
	}

	if _, err := repo.ActiveNear(ctx, KindCollectionEvent, SearchArea{}); !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("ActiveNear(events) error = %v, want ErrInvalidQuery", err)
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]EntityKind{
		"collection-points": KindCollectionPoint,
		"subscriber":        KindSubscriber,
		"collection_events": KindCollectionEvent,
		"waste-types":       KindWasteType,
	}
	for in, want := range tests {
		if got, err := ParseKind(in); err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("users"); !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("ParseKind(users) error = %v", err)
	}
}

func TestSubscriberInput_FieldChecks(t *testing.T) {
	base := SubscriberInput{
		BusinessName: "Mama Put", BusinessType: "restaurant", ServiceCategory: "commercial",
		Latitude: coord(6.6), Longitude: coord(3.35), CollectionPointID: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
	}

	tests := []struct {
		name    string
		mutate  func(*SubscriberInput)
		wantErr bool
	}{
		{"minimal", func(*SubscriberInput) {}, false},
		{"phone", func(in *SubscriberInput) { in.Phone = "+234 803 123 4567" }, false},
		{"bad phone", func(in *SubscriberInput) { in.Phone = "call me" }, true},
		{"long name", func(in *SubscriberInput) { in.BusinessName = strings.Repeat("x", 256) }, true},
		{"bad point id", func(in *SubscriberInput) { in.CollectionPointID = "depot-1" }, true},
		{"missing category", func(in *SubscriberInput) { in.ServiceCategory = " " }, true},
		{"missing point", func(in *SubscriberInput) { in.CollectionPointID = "" }, true},
		{"missing latitude", func(in *SubscriberInput) { in.Latitude = nil }, true},
		{"zero coordinates", func(in *SubscriberInput) { in.Latitude, in.Longitude = coord(0), coord(0) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := in.subscriber()
			if tt.wantErr != (err != nil) {
				t.Fatalf("subscriber() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	sub, err := SubscriberInput{
		BusinessName: "  Mama Put ", BusinessType: "restaurant", ServiceCategory: "commercial",
		Email: " Mama@Example.com", Latitude: coord(6.6), Longitude: coord(3.35),
		CollectionPointID: "7c9e6679-7425-40de-944b-e07fc1f90ae7",
	}.subscriber()
	if err != nil {
		t.Fatalf("subscriber() error = %v", err)
	}
	if sub.BusinessName != "Mama Put" || sub.Email != "mama@example.com" {
		t.Errorf("expected trimmed name and normalized email, got %q %q", sub.BusinessName, sub.Email)
	}
}
