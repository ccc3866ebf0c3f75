package mapview

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/geo"
	"github.com/onnwee/wastemap/internal/proximity"
)

func TestPointFeature(t *testing.T) {
	p := catalog.CollectionPoint{
		ID: "p1", Name: "Ikeja Depot", Address: "1 Allen Ave",
		Location: geo.MustLocation(6.6018, 3.3515), Jurisdiction: "Ikeja", Active: true,
	}
	f := PointFeature(p)

	if f.Geometry.Type != "Point" || f.Geometry.Coordinates != [2]float64{3.3515, 6.6018} {
		t.Errorf("geometry = %+v, want lng/lat order", f.Geometry)
	}
	if f.Properties["type"] != TypeCollectionPoint || f.Properties["localGovernmentArea"] != "Ikeja" || f.Properties["id"] != "p1" {
		t.Errorf("properties = %v", f.Properties)
	}
	if got := f.Properties["cluster"].(string); len(got) != geo.ClusterPrecision {
		t.Errorf("cluster = %q", got)
	}
	if got := f.Properties["style"].(Style).FillColor; got != "#2ecc71" {
		t.Errorf("active point fill = %s", got)
	}
}

func TestStyles(t *testing.T) {
	tests := []struct {
		name        string
		style       Style
		fill        string
		fillOpacity float64
	}{
		{"inactive point", PointStyle(false), "#95a5a6", 0.7},
		{"restaurant", SubscriberStyle("restaurant", true), "#e74c3c", 0.7},
		{"factory", SubscriberStyle("factory", true), "#3498db", 0.7},
		{"bank", SubscriberStyle("bank", true), "#f1c40f", 0.7},
		{"filling station", SubscriberStyle("filling_station", true), "#9b59b6", 0.7},
		{"unknown type", SubscriberStyle("school", true), "#34495e", 0.7},
		{"inactive subscriber", SubscriberStyle("bank", false), "#f1c40f", 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.style.FillColor != tt.fill || tt.style.FillOpacity != tt.fillOpacity {
				t.Errorf("style = %+v, want fill %s at %v", tt.style, tt.fill, tt.fillOpacity)
			}
			if tt.style.Radius != 8 || !tt.style.Stroke || tt.style.Weight != 1 {
				t.Errorf("base style lost: %+v", tt.style)
			}
		})
	}
}

func TestCollection(t *testing.T) {
	l := &catalog.Listing{
		Kind: catalog.KindSubscriber,
		Subscribers: []catalog.Subscriber{
			{ID: "a", BusinessName: "A", BusinessType: "bank", Location: geo.MustLocation(6.4, 3.3), Active: true},
			{ID: "b", BusinessName: "B", BusinessType: "factory", Location: geo.MustLocation(6.6, 3.5)},
		},
	}
	fc, err := Collection(l)
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("collection = %+v", fc)
	}
	want := []float64{3.3, 6.4, 3.5, 6.6}
	for i := range want {
		if fc.BBox[i] != want[i] {
			t.Errorf("bbox = %v, want %v", fc.BBox, want)
			break
		}
	}

	raw, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Features[1].Properties["businessType"] != "factory" || decoded.Features[1].Properties["isActive"] != false {
		t.Errorf("encoded properties = %v", decoded.Features[1].Properties)
	}
}

func TestCollection_Empty(t *testing.T) {
	fc, err := Collection(&catalog.Listing{Kind: catalog.KindCollectionPoint})
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	raw, _ := json.Marshal(fc)
	if string(raw) != `{"type":"FeatureCollection","features":[]}` {
		t.Errorf("empty collection = %s", raw)
	}
}

func TestCollection_Events(t *testing.T) {
	loc := geo.MustLocation(6.5, 3.4)
	l := &catalog.Listing{
		Kind: catalog.KindCollectionEvent,
		Events: []catalog.CollectionEvent{
			{ID: "e1", CollectedAt: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), WeightTons: 1.2, PointLocation: &loc},
			{ID: "e2"},
		},
	}
	fc, err := Collection(l)
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].ID != "e1" {
		t.Errorf("features = %+v, want only the located event", fc.Features)
	}
}

func TestCollection_WasteTypes(t *testing.T) {
	_, err := Collection(&catalog.Listing{Kind: catalog.KindWasteType})
	if !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("Collection(waste types) error = %v, want ErrInvalidQuery", err)
	}
}

func TestNewViewport(t *testing.T) {
	cfg := DefaultConfig()

	v := NewViewport(cfg, nil)
	if v.Center != [2]float64{cfg.Center.Lat(), cfg.Center.Lng()} || v.Bounds != nil {
		t.Errorf("empty viewport = %+v, want default center without bounds", v)
	}

	v = NewViewport(cfg, []geo.Location{geo.MustLocation(6.0, 3.0), geo.MustLocation(7.0, 4.0)})
	if v.Center != [2]float64{6.5, 3.5} {
		t.Errorf("center = %v, want [6.5 3.5]", v.Center)
	}
	if v.Bounds == nil || *v.Bounds != [2][2]float64{{6, 3}, {7, 4}} {
		t.Errorf("bounds = %v", v.Bounds)
	}
	if v.Zoom != cfg.Zoom || v.MaxZoom != cfg.MaxZoom {
		t.Errorf("zoom levels not carried over: %+v", v)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
	bad := DefaultConfig()
	bad.Zoom = 20
	if err := bad.Validate(); !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("Validate() = %v, want ErrInvalidQuery", err)
	}
}

func TestActiveLocations(t *testing.T) {
	l := &catalog.Listing{
		Kind: catalog.KindCollectionPoint,
		Points: []catalog.CollectionPoint{
			{ID: "a", Location: geo.MustLocation(1, 1), Active: true},
			{ID: "b", Location: geo.MustLocation(2, 2)},
		},
	}
	if got := ActiveLocations(l); len(got) != 1 || got[0].Lat() != 1 {
		t.Errorf("ActiveLocations() = %v", got)
	}
}

func TestMatchCollection(t *testing.T) {
	matches := []proximity.Match{
		{Entity: catalog.CollectionPoint{ID: "p1", Name: "Yaba", Location: geo.MustLocation(6.51, 3.37), Active: true}, DistanceMeters: 120.5},
		{Entity: catalog.Subscriber{ID: "s1", BusinessName: "Mama Put", BusinessType: "restaurant", Location: geo.MustLocation(6.52, 3.38), Active: true}, DistanceMeters: 900},
	}

	fc := MatchCollection(matches)
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	if fc.Features[0].ID != "p1" || fc.Features[1].ID != "s1" {
		t.Errorf("expected distance order to be kept, got %s, %s", fc.Features[0].ID, fc.Features[1].ID)
	}
	if got := fc.Features[0].Properties["distanceMeters"]; got != 120.5 {
		t.Errorf("expected distanceMeters 120.5, got %v", got)
	}
	if got := fc.Features[1].Properties["type"]; got != TypeSubscriber {
		t.Errorf("expected subscriber feature, got %v", got)
	}
}
