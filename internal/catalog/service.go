package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/audit"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/requestctx"
)

// Service lists and mutates catalog entities. Successful mutations are
// reported to the audit hook after the store write returns.
type Service struct {
	repo   Repository
	hook   audit.Hook
	loc    *time.Location
	logger *slog.Logger
}

// NewService creates a Service. A nil hook disables auditing, a nil loc
// means UTC and a nil logger uses slog.Default().
func NewService(repo Repository, hook audit.Hook, loc *time.Location, logger *slog.Logger) *Service {
	if hook == nil {
		hook = audit.NopHook{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hook: hook, loc: loc, logger: logger}
}

// Location returns the timezone date-only filters are read in.
func (s *Service) Location() *time.Location { return s.loc }

// Listing is the result of List. Exactly one slice matching Kind is set.
type Listing struct {
	Kind        EntityKind
	Points      []CollectionPoint
	Subscribers []Subscriber
	Events      []CollectionEvent
	WasteTypes  []WasteType
}

// Len returns the number of listed entities.
func (l *Listing) Len() int {
	switch l.Kind {
	case KindCollectionPoint:
		return len(l.Points)
	case KindSubscriber:
		return len(l.Subscribers)
	case KindCollectionEvent:
		return len(l.Events)
	case KindWasteType:
		return len(l.WasteTypes)
	}
	return 0
}

// Items returns the listed slice for JSON encoding. Empty listings encode
// as [] rather than null.
func (l *Listing) Items() any {
	switch l.Kind {
	case KindCollectionPoint:
		return orEmpty(l.Points)
	case KindSubscriber:
		return orEmpty(l.Subscribers)
	case KindCollectionEvent:
		return orEmpty(l.Events)
	case KindWasteType:
		return orEmpty(l.WasteTypes)
	}
	return []any{}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// List returns the entities of kind matching values. Keys a kind has no
// column for are ignored, so one filter vocabulary serves every kind.
func (s *Service) List(ctx context.Context, kind EntityKind, values filter.Values) (*Listing, error) {
	c, err := filter.Parse(values, s.loc)
	if err != nil {
		return nil, err
	}

	l := &Listing{Kind: kind}
	switch kind {
	case KindCollectionPoint:
		l.Points, err = s.repo.ListPoints(ctx, c)
	case KindSubscriber:
		l.Subscribers, err = s.repo.ListSubscribers(ctx, c)
	case KindCollectionEvent:
		l.Events, err = s.repo.ListEvents(ctx, c)
	case KindWasteType:
		l.WasteTypes, err = s.repo.ListWasteTypes(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown entity kind %q", apperr.ErrInvalidQuery, kind)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) audit(ctx context.Context, action string, kind EntityKind, id string, before, after any) {
	s.logger.DebugContext(ctx, "catalog mutation committed", "action", action, "entity_type", kind, "entity_id", id)
	s.hook.AfterCommit(ctx, audit.Change{
		Action:     action,
		EntityType: string(kind),
		EntityID:   id,
		Before:     before,
		After:      after,
	})
}

// GetPoint returns one collection point.
func (s *Service) GetPoint(ctx context.Context, id string) (*CollectionPoint, error) {
	return s.repo.GetPoint(ctx, id)
}

// CreatePoint validates in and stores a new collection point.
func (s *Service) CreatePoint(ctx context.Context, in PointInput) (*CollectionPoint, error) {
	p, err := in.point()
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreatePoint(ctx, &p); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.ActionCreate, KindCollectionPoint, p.ID, nil, p)
	return &p, nil
}

// UpdatePoint replaces the fields of an existing collection point.
func (s *Service) UpdatePoint(ctx context.Context, id string, in PointInput) (*CollectionPoint, error) {
	p, err := in.point()
	if err != nil {
		return nil, err
	}
	before, err := s.repo.GetPoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.IsActive == nil {
		p.Active = before.Active
	}
	p.ID = id
	if err := s.repo.UpdatePoint(ctx, &p); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.ActionUpdate, KindCollectionPoint, id, before, p)
	return &p, nil
}

// DeactivatePoint soft-deletes a collection point. Its events and
// subscribers keep referencing it.
func (s *Service) DeactivatePoint(ctx context.Context, id string) error {
	before, err := s.repo.GetPoint(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeactivatePoint(ctx, id); err != nil {
		return err
	}
	after := *before
	after.Active = false
	s.audit(ctx, audit.ActionDeactivate, KindCollectionPoint, id, before, after)
	return nil
}

// GetSubscriber returns one subscriber.
func (s *Service) GetSubscriber(ctx context.Context, id string) (*Subscriber, error) {
	return s.repo.GetSubscriber(ctx, id)
}

// CreateSubscriber validates in and stores a new subscriber.
func (s *Service) CreateSubscriber(ctx context.Context, in SubscriberInput) (*Subscriber, error) {
	sub, err := in.subscriber()
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateSubscriber(ctx, &sub); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.ActionCreate, KindSubscriber, sub.ID, nil, sub)
	return &sub, nil
}

// UpdateSubscriber replaces the fields of an existing subscriber.
func (s *Service) UpdateSubscriber(ctx context.Context, id string, in SubscriberInput) (*Subscriber, error) {
	sub, err := in.subscriber()
	if err != nil {
		return nil, err
	}
	before, err := s.repo.GetSubscriber(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.IsActive == nil {
		sub.Active = before.Active
	}
	sub.ID = id
	if err := s.repo.UpdateSubscriber(ctx, &sub); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.ActionUpdate, KindSubscriber, id, before, sub)
	return &sub, nil
}

// DeactivateSubscriber soft-deletes a subscriber.
func (s *Service) DeactivateSubscriber(ctx context.Context, id string) error {
	before, err := s.repo.GetSubscriber(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeactivateSubscriber(ctx, id); err != nil {
		return err
	}
	after := *before
	after.Active = false
	s.audit(ctx, audit.ActionDeactivate, KindSubscriber, id, before, after)
	return nil
}

// BusinessTypes lists the distinct subscriber business types.
func (s *Service) BusinessTypes(ctx context.Context) ([]string, error) {
	return s.repo.BusinessTypes(ctx)
}

// ServiceCategories lists the distinct subscriber service categories.
func (s *Service) ServiceCategories(ctx context.Context) ([]string, error) {
	return s.repo.ServiceCategories(ctx)
}

// WasteTypes lists the waste type reference data.
func (s *Service) WasteTypes(ctx context.Context) ([]WasteType, error) {
	return s.repo.ListWasteTypes(ctx)
}

// GetEvent returns one collection event.
func (s *Service) GetEvent(ctx context.Context, id string) (*CollectionEvent, error) {
	return s.repo.GetEvent(ctx, id)
}

// CreateEvent validates in and records a collection. The recording actor is
// taken from ctx.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (*CollectionEvent, error) {
	e, err := in.event(s.loc, false)
	if err != nil {
		return nil, err
	}
	e.CreatedBy = requestctx.GetActorID(ctx)
	if err := s.repo.CreateEvent(ctx, &e); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.ActionCreate, KindCollectionEvent, e.ID, nil, e)
	return &e, nil
}

// UpdateEvent changes the date, measurements, crew and notes of an event.
func (s *Service) UpdateEvent(ctx context.Context, id string, in EventInput) (*CollectionEvent, error) {
	e, err := in.event(s.loc, true)
	if err != nil {
		return nil, err
	}
	before, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	e.ID = id
	if err := s.repo.UpdateEvent(ctx, &e); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.ActionUpdate, KindCollectionEvent, id, before, e)
	return &e, nil
}

// DeleteEvent removes a collection event.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	before, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return err
	}
	s.audit(ctx, audit.ActionDelete, KindCollectionEvent, id, before, nil)
	return nil
}
