package mapview

import (
	"fmt"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/geo"
	"github.com/onnwee/wastemap/internal/proximity"
)

// Geometry is a GeoJSON Point. Coordinates are [lng, lat].
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Feature is a GeoJSON Feature with free-form properties.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is a GeoJSON FeatureCollection. BBox follows RFC 7946
// order: [minLng, minLat, maxLng, maxLat].
type FeatureCollection struct {
	Type     string    `json:"type"`
	BBox     []float64 `json:"bbox,omitempty"`
	Features []Feature `json:"features"`
}

// Feature types carried in the "type" property.
const (
	TypeCollectionPoint = "collection_point"
	TypeSubscriber      = "subscriber"
	TypeCollectionEvent = "collection_event"
)

func point(loc geo.Location) Geometry {
	return Geometry{Type: "Point", Coordinates: [2]float64{loc.Lng(), loc.Lat()}}
}

func newFeature(id string, loc geo.Location, props map[string]any) Feature {
	props["id"] = id
	props["cluster"] = geo.Geohash(loc, geo.ClusterPrecision)
	return Feature{Type: "Feature", ID: id, Geometry: point(loc), Properties: props}
}

// PointFeature renders a collection point.
func PointFeature(p catalog.CollectionPoint) Feature {
	props := map[string]any{
		"name":                p.Name,
		"address":             p.Address,
		"localGovernmentArea": p.Jurisdiction,
		"isActive":            p.Active,
		"type":                TypeCollectionPoint,
	}
	props["style"] = PointStyle(p.Active)
	return newFeature(p.ID, p.Location, props)
}

// SubscriberFeature renders a subscriber.
func SubscriberFeature(s catalog.Subscriber) Feature {
	props := map[string]any{
		"businessName":      s.BusinessName,
		"businessType":      s.BusinessType,
		"serviceCategory":   s.ServiceCategory,
		"address":           s.Address,
		"collectionPointId": s.CollectionPointID,
		"isActive":          s.Active,
		"type":              TypeSubscriber,
	}
	props["style"] = SubscriberStyle(s.BusinessType, s.Active)
	return newFeature(s.ID, s.Location, props)
}

// EventFeature renders a collection event at its point's location. Events
// without a joined location are not mappable.
func EventFeature(e catalog.CollectionEvent) (Feature, bool) {
	if e.PointLocation == nil {
		return Feature{}, false
	}
	props := map[string]any{
		"collectionPointId":   e.CollectionPointID,
		"collectionPointName": e.CollectionPointName,
		"localGovernmentArea": e.Jurisdiction,
		"wasteType":           e.WasteTypeName,
		"collectionDate":      e.CollectedAt,
		"volumeCubicMeters":   e.VolumeCubicMeters,
		"weightTons":          e.WeightTons,
		"type":                TypeCollectionEvent,
	}
	return newFeature(e.ID, *e.PointLocation, props), true
}

// Collection renders l as a FeatureCollection. Waste types have no location
// and are rejected.
func Collection(l *catalog.Listing) (FeatureCollection, error) {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, l.Len())}
	switch l.Kind {
	case catalog.KindCollectionPoint:
		for _, p := range l.Points {
			fc.Features = append(fc.Features, PointFeature(p))
		}
	case catalog.KindSubscriber:
		for _, s := range l.Subscribers {
			fc.Features = append(fc.Features, SubscriberFeature(s))
		}
	case catalog.KindCollectionEvent:
		for _, e := range l.Events {
			if f, ok := EventFeature(e); ok {
				fc.Features = append(fc.Features, f)
			}
		}
	default:
		return FeatureCollection{}, fmt.Errorf("%w: %s cannot be rendered as GeoJSON", apperr.ErrInvalidQuery, l.Kind)
	}

	locs := make([]geo.Location, 0, len(fc.Features))
	for _, f := range fc.Features {
		locs = append(locs, geo.MustLocation(f.Geometry.Coordinates[1], f.Geometry.Coordinates[0]))
	}
	if box, ok := geo.Extent(locs); ok {
		fc.BBox = []float64{box.MinLng, box.MinLat, box.MaxLng, box.MaxLat}
	}
	return fc, nil
}

// MatchCollection renders proximity results in distance order. Each feature
// carries its distance from the search center in "distanceMeters".
func MatchCollection(matches []proximity.Match) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(matches))}
	for _, m := range matches {
		var f Feature
		switch e := m.Entity.(type) {
		case catalog.CollectionPoint:
			f = PointFeature(e)
		case catalog.Subscriber:
			f = SubscriberFeature(e)
		default:
			continue
		}
		f.Properties["distanceMeters"] = m.DistanceMeters
		fc.Features = append(fc.Features, f)
	}
	return fc
}
