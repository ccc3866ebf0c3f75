// Package proximity answers radius searches over active located entities.
// The store narrows candidates; inclusion and ordering always use the
// haversine distance.
package proximity

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/geo"
	"github.com/onnwee/wastemap/internal/tracing"
)

// Defaults applied by NewQuery.
const (
	DefaultRadiusMeters = 5000
	DefaultLimit        = 10
)

// boxPadding widens the pre-filter box so edge candidates survive the
// 111 320 m/degree approximation.
const boxPadding = 1.005

// candidateFactor over-fetches nearest candidates so the spheroid ordering
// in the store cannot push a haversine top-N match past the cut.
const candidateFactor = 2

// candidateSlack is added to the over-fetch for small limits.
const candidateSlack = 10

// Candidates is the store side of a search. See catalog.Repository.ActiveNear.
type Candidates interface {
	ActiveNear(ctx context.Context, kind catalog.EntityKind, area catalog.SearchArea) ([]catalog.Locatable, error)
}

// Query is one radius search.
type Query struct {
	Kind         catalog.EntityKind
	Center       geo.Location
	RadiusMeters float64
	Limit        int
}

// NewQuery builds a Query from raw coordinates. Zero radius and limit take
// the defaults; validation happens in Nearby.
func NewQuery(kind catalog.EntityKind, lat, lng, radiusMeters float64, limit int) (Query, error) {
	center, err := geo.NewLocation(lat, lng)
	if err != nil {
		return Query{}, err
	}
	if radiusMeters == 0 {
		radiusMeters = DefaultRadiusMeters
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	return Query{Kind: kind, Center: center, RadiusMeters: radiusMeters, Limit: limit}, nil
}

func (q Query) validate() error {
	if !geo.IsValidCoordinates(q.Center.Lat(), q.Center.Lng()) {
		return fmt.Errorf("%w: center %s", apperr.ErrInvalidQuery, q.Center)
	}
	if !(q.RadiusMeters > 0) || math.IsInf(q.RadiusMeters, 0) {
		return fmt.Errorf("%w: radius must be a positive number of meters", apperr.ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", apperr.ErrInvalidQuery)
	}
	switch q.Kind {
	case catalog.KindCollectionPoint, catalog.KindSubscriber:
	default:
		return fmt.Errorf("%w: %q is not searchable by location", apperr.ErrInvalidQuery, q.Kind)
	}
	return nil
}

// Match is one search result.
type Match struct {
	Entity         catalog.Locatable `json:"entity"`
	DistanceMeters float64           `json:"distance_meters"`
}

// Engine runs proximity searches.
type Engine struct {
	store Candidates
}

// NewEngine creates an Engine over store.
func NewEngine(store Candidates) *Engine {
	return &Engine{store: store}
}

// Nearby returns active entities within q.RadiusMeters of q.Center, nearest
// first with ties broken by id, at most q.Limit of them. A zero Limit means
// DefaultLimit.
func (e *Engine) Nearby(ctx context.Context, q Query) ([]Match, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	ctx, end := tracing.StartSpan(ctx, "proximity.nearby",
		attribute.String("entity.kind", string(q.Kind)),
		attribute.Float64("radius_meters", q.RadiusMeters),
		attribute.Int("limit", limit),
	)
	matches, err := e.nearby(ctx, q, limit)
	end(err)
	return matches, err
}

func (e *Engine) nearby(ctx context.Context, q Query, limit int) ([]Match, error) {
	area := catalog.SearchArea{
		Center:       q.Center,
		RadiusMeters: q.RadiusMeters,
		Limit:        limit*candidateFactor + candidateSlack,
	}
	if box := geo.BoundingBox(q.Center, q.RadiusMeters*boxPadding); box.Usable() {
		area.Box = &box
	}

	candidates, err := e.store.ActiveNear(ctx, q.Kind, area)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if !c.IsActive() {
			continue
		}
		d := geo.Distance(q.Center, c.Position())
		if d <= q.RadiusMeters {
			matches = append(matches, Match{Entity: c, DistanceMeters: d})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].DistanceMeters != matches[j].DistanceMeters {
			return matches[i].DistanceMeters < matches[j].DistanceMeters
		}
		return matches[i].Entity.EntityID() < matches[j].Entity.EntityID()
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
