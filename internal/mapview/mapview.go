// Package mapview renders catalog entities as GeoJSON for the map frontend
// and serves the map's default viewport.
package mapview

import (
	"fmt"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/geo"
)

// Config is the map's initial viewport.
type Config struct {
	Center  geo.Location
	Zoom    int
	MinZoom int
	MaxZoom int
}

// DefaultConfig centers the map on Lagos.
func DefaultConfig() Config {
	return Config{Center: geo.MustLocation(6.5244, 3.3792), Zoom: 11, MinZoom: 9, MaxZoom: 18}
}

// Validate checks the zoom levels.
func (c Config) Validate() error {
	if c.MinZoom < 0 || c.MaxZoom < c.MinZoom || c.Zoom < c.MinZoom || c.Zoom > c.MaxZoom {
		return fmt.Errorf("%w: zoom %d must lie within [%d, %d]", apperr.ErrInvalidQuery, c.Zoom, c.MinZoom, c.MaxZoom)
	}
	return nil
}

// Viewport is the JSON body of the map config endpoint. Center is [lat, lng]
// as Leaflet expects; Bounds, when present, is [[minLat, minLng], [maxLat, maxLng]]
// around every active collection point.
type Viewport struct {
	Center  [2]float64     `json:"center"`
	Zoom    int            `json:"zoom"`
	MinZoom int            `json:"minZoom"`
	MaxZoom int            `json:"maxZoom"`
	Bounds  *[2][2]float64 `json:"bounds,omitempty"`
}

// NewViewport fits c to points. Without points it is c unchanged.
func NewViewport(c Config, points []geo.Location) Viewport {
	center := geo.CenterOf(points, c.Center)
	v := Viewport{
		Center:  [2]float64{center.Lat(), center.Lng()},
		Zoom:    c.Zoom,
		MinZoom: c.MinZoom,
		MaxZoom: c.MaxZoom,
	}
	if box, ok := geo.Extent(points); ok {
		v.Bounds = &[2][2]float64{{box.MinLat, box.MinLng}, {box.MaxLat, box.MaxLng}}
	}
	return v
}

// ActiveLocations returns the positions of the active entities in l.
func ActiveLocations(l *catalog.Listing) []geo.Location {
	var out []geo.Location
	switch l.Kind {
	case catalog.KindCollectionPoint:
		for _, p := range l.Points {
			if p.Active {
				out = append(out, p.Location)
			}
		}
	case catalog.KindSubscriber:
		for _, s := range l.Subscribers {
			if s.Active {
				out = append(out, s.Location)
			}
		}
	}
	return out
}
