package catalog

import (
	"context"

	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/geo"
)

// SearchArea bounds a proximity candidate query. Box is an optional index
// pre-filter; the circle is authoritative. A positive Limit keeps only the
// Limit candidates nearest Center, ties broken by id.
type SearchArea struct {
	Center       geo.Location
	RadiusMeters float64
	Box          *geo.Box
	Limit        int
}

// Repository is the catalog store. Mutations return apperr.ErrNotFound for
// unknown ids and apperr.ErrReferentialViolation for references to missing
// entities.
type Repository interface {
	ListPoints(ctx context.Context, c filter.Criteria) ([]CollectionPoint, error)
	GetPoint(ctx context.Context, id string) (*CollectionPoint, error)
	CreatePoint(ctx context.Context, p *CollectionPoint) error
	UpdatePoint(ctx context.Context, p *CollectionPoint) error
	DeactivatePoint(ctx context.Context, id string) error

	ListSubscribers(ctx context.Context, c filter.Criteria) ([]Subscriber, error)
	GetSubscriber(ctx context.Context, id string) (*Subscriber, error)
	CreateSubscriber(ctx context.Context, s *Subscriber) error
	UpdateSubscriber(ctx context.Context, s *Subscriber) error
	DeactivateSubscriber(ctx context.Context, id string) error
	BusinessTypes(ctx context.Context) ([]string, error)
	ServiceCategories(ctx context.Context) ([]string, error)

	ListEvents(ctx context.Context, c filter.Criteria) ([]CollectionEvent, error)
	GetEvent(ctx context.Context, id string) (*CollectionEvent, error)
	CreateEvent(ctx context.Context, e *CollectionEvent) error
	UpdateEvent(ctx context.Context, e *CollectionEvent) error
	DeleteEvent(ctx context.Context, id string) error

	ListWasteTypes(ctx context.Context) ([]WasteType, error)

	// ActiveNear returns active entities of kind that may lie within area.
	// It can over-approximate; callers apply the exact distance check.
	ActiveNear(ctx context.Context, kind EntityKind, area SearchArea) ([]Locatable, error)
}
