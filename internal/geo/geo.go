// Package geo provides the geographic primitives used by listing, proximity
// search and map rendering. Everything here is pure and safe for concurrent use.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/onnwee/wastemap/internal/apperr"
)

const (
	// EarthRadiusMeters is the mean Earth radius used by Distance.
	EarthRadiusMeters = 6371000.0

	// MetersPerDegreeLat is the fixed meters-per-degree constant used by BoundingBox.
	MetersPerDegreeLat = 111320.0
)

// ErrInvalidCoordinates is returned when a latitude or longitude is out of range or NaN.
var ErrInvalidCoordinates = fmt.Errorf("%w: coordinates out of range", apperr.ErrInvalidQuery)

// Location is a validated WGS 84 coordinate. The zero value is (0, 0).
type Location struct {
	lat float64
	lng float64
}

// NewLocation validates and returns a Location.
func NewLocation(lat, lng float64) (Location, error) {
	if !IsValidCoordinates(lat, lng) {
		return Location{}, fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidCoordinates, lat, lng)
	}
	return Location{lat: lat, lng: lng}, nil
}

// MustLocation is NewLocation for constants and tests. It panics on invalid input.
func MustLocation(lat, lng float64) Location {
	loc, err := NewLocation(lat, lng)
	if err != nil {
		panic(err)
	}
	return loc
}

// Lat returns the latitude in degrees.
func (l Location) Lat() float64 { return l.lat }

// Lng returns the longitude in degrees.
func (l Location) Lng() float64 { return l.lng }

// String formats the location as "lat, lng" with six decimals.
func (l Location) String() string {
	return FormatCoordinates(l, 6)
}

type locationJSON struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MarshalJSON encodes the location as {"lat":..,"lng":..}.
func (l Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationJSON{Lat: l.lat, Lng: l.lng})
}

// UnmarshalJSON decodes and validates {"lat":..,"lng":..}.
func (l *Location) UnmarshalJSON(data []byte) error {
	var raw locationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	loc, err := NewLocation(raw.Lat, raw.Lng)
	if err != nil {
		return err
	}
	*l = loc
	return nil
}

// Box is a latitude/longitude envelope.
type Box struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Contains reports whether loc lies inside the box, edges included.
func (b Box) Contains(loc Location) bool {
	return loc.lat >= b.MinLat && loc.lat <= b.MaxLat &&
		loc.lng >= b.MinLng && loc.lng <= b.MaxLng
}

// Usable reports whether the box is a well-formed envelope inside the valid
// coordinate range. Boxes produced by BoundingBox near the poles or across the
// antimeridian are not, and must not be used as an index pre-filter.
func (b Box) Usable() bool {
	for _, v := range []float64{b.MinLat, b.MaxLat, b.MinLng, b.MaxLng} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinLat <= b.MaxLat && b.MinLng <= b.MaxLng &&
		b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MinLng >= -180 && b.MaxLng <= 180
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// Distance returns the great-circle distance in meters between a and b using
// the haversine formula.
func Distance(a, b Location) float64 {
	dLat := toRadians(b.lat - a.lat)
	dLng := toRadians(b.lng - a.lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.lat))*math.Cos(toRadians(b.lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	// Rounding can push h slightly past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BoundingBox approximates a square envelope of radiusMeters around center.
//
// Latitude uses the fixed MetersPerDegreeLat constant; longitude is scaled by
// cos(latitude). This is not a geodesic box. As the latitude approaches ±90
// the longitude half-width grows without bound (and is infinite at the pole),
// and boxes near ±180 are not wrapped. The result is returned as computed;
// callers check Box.Usable before handing it to a spatial index.
func BoundingBox(center Location, radiusMeters float64) Box {
	dLat := radiusMeters / MetersPerDegreeLat
	dLng := radiusMeters / (MetersPerDegreeLat * math.Cos(toRadians(center.lat)))

	return Box{
		MinLat: center.lat - dLat,
		MaxLat: center.lat + dLat,
		MinLng: center.lng - dLng,
		MaxLng: center.lng + dLng,
	}
}

// IsValidCoordinates reports whether lat is in [-90, 90] and lng in [-180, 180].
// NaN is never valid.
func IsValidCoordinates(lat, lng float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lng) &&
		lat >= -90 && lat <= 90 &&
		lng >= -180 && lng <= 180
}

var coordinateSeparator = regexp.MustCompile(`\s*,\s*|\s+`)

// ParseCoordinates parses "lat,lng" or "lat lng". It returns false for any
// malformed or out-of-range input; that is a value, not an error.
func ParseCoordinates(text string) (Location, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Location{}, false
	}

	parts := coordinateSeparator.Split(text, -1)
	if len(parts) != 2 {
		return Location{}, false
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Location{}, false
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Location{}, false
	}

	loc, err := NewLocation(lat, lng)
	if err != nil {
		return Location{}, false
	}
	return loc, true
}

// CenterOf returns the arithmetic mean of points, or fallback when points is
// empty. An empty input is a normal state (nothing recorded yet), not an error.
func CenterOf(points []Location, fallback Location) Location {
	if len(points) == 0 {
		return fallback
	}

	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.lat
		sumLng += p.lng
	}
	n := float64(len(points))
	return Location{lat: sumLat / n, lng: sumLng / n}
}

// Extent returns the smallest box containing all points. It returns false for
// an empty input.
func Extent(points []Location) (Box, bool) {
	if len(points) == 0 {
		return Box{}, false
	}

	box := Box{MinLat: 90, MaxLat: -90, MinLng: 180, MaxLng: -180}
	for _, p := range points {
		box.MinLat = math.Min(box.MinLat, p.lat)
		box.MaxLat = math.Max(box.MaxLat, p.lat)
		box.MinLng = math.Min(box.MinLng, p.lng)
		box.MaxLng = math.Max(box.MaxLng, p.lng)
	}
	return box, true
}

// FormatCoordinates renders loc as "lat, lng" with the given number of decimals.
func FormatCoordinates(loc Location, precision int) string {
	if precision < 0 {
		precision = 6
	}
	return strconv.FormatFloat(loc.lat, 'f', precision, 64) + ", " +
		strconv.FormatFloat(loc.lng, 'f', precision, 64)
}

// IsInvalidCoordinates reports whether err was caused by invalid coordinates.
func IsInvalidCoordinates(err error) bool {
	return errors.Is(err, ErrInvalidCoordinates)
}
