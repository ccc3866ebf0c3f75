package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/geo"
)

// InMemoryRepository is a Repository for tests and development. It enforces
// the same references the database's foreign keys do.
type InMemoryRepository struct {
	mu          sync.RWMutex
	points      map[string]CollectionPoint
	subscribers map[string]Subscriber
	events      map[string]CollectionEvent
	wasteTypes  map[string]WasteType
	now         func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		points:      make(map[string]CollectionPoint),
		subscribers: make(map[string]Subscriber),
		events:      make(map[string]CollectionEvent),
		wasteTypes:  make(map[string]WasteType),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AddWasteType seeds a waste type, assigning an id when empty.
func (r *InMemoryRepository) AddWasteType(wt WasteType) WasteType {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wt.ID == "" {
		wt.ID = uuid.New().String()
	}
	r.wasteTypes[wt.ID] = wt
	return wt
}

func notFound(kind EntityKind, id string) error {
	return fmt.Errorf("%w: %s %s", apperr.ErrNotFound, kind, id)
}

func missingRef(kind EntityKind, id string) error {
	return fmt.Errorf("%w: %s %s", apperr.ErrReferentialViolation, kind, id)
}

// ListPoints implements Repository.
func (r *InMemoryRepository) ListPoints(_ context.Context, c filter.Criteria) ([]CollectionPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []CollectionPoint
	for _, p := range r.points {
		if c.Matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetPoint implements Repository.
func (r *InMemoryRepository) GetPoint(_ context.Context, id string) (*CollectionPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.points[id]
	if !ok {
		return nil, notFound(KindCollectionPoint, id)
	}
	return &p, nil
}

// CreatePoint implements Repository.
func (r *InMemoryRepository) CreatePoint(_ context.Context, p *CollectionPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = r.now()
	p.UpdatedAt = p.CreatedAt
	r.points[p.ID] = *p
	return nil
}

// UpdatePoint implements Repository.
func (r *InMemoryRepository) UpdatePoint(_ context.Context, p *CollectionPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.points[p.ID]
	if !ok {
		return notFound(KindCollectionPoint, p.ID)
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = r.now()
	r.points[p.ID] = *p
	return nil
}

// DeactivatePoint implements Repository.
func (r *InMemoryRepository) DeactivatePoint(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.points[id]
	if !ok {
		return notFound(KindCollectionPoint, id)
	}
	p.Active = false
	p.UpdatedAt = r.now()
	r.points[id] = p
	return nil
}

// withPoint fills the joined read-side fields. Caller holds the lock.
func (r *InMemoryRepository) withPoint(s Subscriber) Subscriber {
	s.CollectionPointName, s.Jurisdiction = "", ""
	if p, ok := r.points[s.CollectionPointID]; ok {
		s.CollectionPointName = p.Name
		s.Jurisdiction = p.Jurisdiction
	}
	return s
}

// ListSubscribers implements Repository.
func (r *InMemoryRepository) ListSubscribers(_ context.Context, c filter.Criteria) ([]Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Subscriber
	for _, s := range r.subscribers {
		if s = r.withPoint(s); c.Matches(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BusinessName != out[j].BusinessName {
			return out[i].BusinessName < out[j].BusinessName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetSubscriber implements Repository.
func (r *InMemoryRepository) GetSubscriber(_ context.Context, id string) (*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subscribers[id]
	if !ok {
		return nil, notFound(KindSubscriber, id)
	}
	s = r.withPoint(s)
	return &s, nil
}

func (r *InMemoryRepository) checkPointRef(id string) error {
	if _, ok := r.points[id]; !ok {
		return missingRef(KindCollectionPoint, id)
	}
	return nil
}

// CreateSubscriber implements Repository.
func (r *InMemoryRepository) CreateSubscriber(_ context.Context, s *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkPointRef(s.CollectionPointID); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.CreatedAt = r.now()
	s.UpdatedAt = s.CreatedAt
	*s = r.withPoint(*s)
	r.subscribers[s.ID] = *s
	return nil
}

// UpdateSubscriber implements Repository.
func (r *InMemoryRepository) UpdateSubscriber(_ context.Context, s *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.subscribers[s.ID]
	if !ok {
		return notFound(KindSubscriber, s.ID)
	}
	if err := r.checkPointRef(s.CollectionPointID); err != nil {
		return err
	}
	s.CreatedAt = old.CreatedAt
	s.UpdatedAt = r.now()
	*s = r.withPoint(*s)
	r.subscribers[s.ID] = *s
	return nil
}

// DeactivateSubscriber implements Repository.
func (r *InMemoryRepository) DeactivateSubscriber(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscribers[id]
	if !ok {
		return notFound(KindSubscriber, id)
	}
	s.Active = false
	s.UpdatedAt = r.now()
	r.subscribers[id] = s
	return nil
}

// BusinessTypes implements Repository.
func (r *InMemoryRepository) BusinessTypes(context.Context) ([]string, error) {
	return r.distinct(func(s Subscriber) string { return s.BusinessType }), nil
}

// ServiceCategories implements Repository.
func (r *InMemoryRepository) ServiceCategories(context.Context) ([]string, error) {
	return r.distinct(func(s Subscriber) string { return s.ServiceCategory }), nil
}

func (r *InMemoryRepository) distinct(field func(Subscriber) string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	out := []string{}
	for _, s := range r.subscribers {
		if v := field(s); v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// withRefs fills the joined read-side fields. Caller holds the lock.
func (r *InMemoryRepository) withRefs(e CollectionEvent) CollectionEvent {
	if p, ok := r.points[e.CollectionPointID]; ok {
		e.CollectionPointName = p.Name
		e.Jurisdiction = p.Jurisdiction
		loc := p.Location
		e.PointLocation = &loc
	}
	if wt, ok := r.wasteTypes[e.WasteTypeID]; ok {
		e.WasteTypeName = wt.Name
	}
	return e
}

// ListEvents implements Repository. Newest collection first.
func (r *InMemoryRepository) ListEvents(_ context.Context, c filter.Criteria) ([]CollectionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []CollectionEvent
	for _, e := range r.events {
		if e = r.withRefs(e); c.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].CollectedAt.After(out[j].CollectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetEvent implements Repository.
func (r *InMemoryRepository) GetEvent(_ context.Context, id string) (*CollectionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, notFound(KindCollectionEvent, id)
	}
	e = r.withRefs(e)
	return &e, nil
}

// CreateEvent implements Repository.
func (r *InMemoryRepository) CreateEvent(_ context.Context, e *CollectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.points[e.CollectionPointID]; !ok {
		return missingRef(KindCollectionPoint, e.CollectionPointID)
	}
	if _, ok := r.wasteTypes[e.WasteTypeID]; !ok {
		return missingRef(KindWasteType, e.WasteTypeID)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.CreatedAt = r.now()
	e.UpdatedAt = e.CreatedAt
	*e = r.withRefs(*e)
	r.events[e.ID] = *e
	return nil
}

// UpdateEvent implements Repository. The point and waste type are kept.
func (r *InMemoryRepository) UpdateEvent(_ context.Context, e *CollectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.events[e.ID]
	if !ok {
		return notFound(KindCollectionEvent, e.ID)
	}
	e.CollectionPointID = old.CollectionPointID
	e.WasteTypeID = old.WasteTypeID
	e.CreatedBy = old.CreatedBy
	e.CreatedAt = old.CreatedAt
	e.UpdatedAt = r.now()
	*e = r.withRefs(*e)
	r.events[e.ID] = *e
	return nil
}

// DeleteEvent implements Repository.
func (r *InMemoryRepository) DeleteEvent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return notFound(KindCollectionEvent, id)
	}
	delete(r.events, id)
	return nil
}

// ListWasteTypes implements Repository.
func (r *InMemoryRepository) ListWasteTypes(context.Context) ([]WasteType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WasteType, 0, len(r.wasteTypes))
	for _, wt := range r.wasteTypes {
		out = append(out, wt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ActiveNear implements Repository. Only the box and the limit are applied
// here; the radius is left to the caller.
func (r *InMemoryRepository) ActiveNear(_ context.Context, kind EntityKind, area SearchArea) ([]Locatable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keep := func(l Locatable) bool {
		return l.IsActive() && (area.Box == nil || area.Box.Contains(l.Position()))
	}

	var out []Locatable
	switch kind {
	case KindCollectionPoint:
		for _, p := range r.points {
			if keep(p) {
				out = append(out, p)
			}
		}
	case KindSubscriber:
		for _, s := range r.subscribers {
			if s = r.withPoint(s); keep(s) {
				out = append(out, s)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s has no location", apperr.ErrInvalidQuery, kind)
	}
	if area.Limit > 0 && len(out) > area.Limit {
		sort.Slice(out, func(i, j int) bool {
			di, dj := geo.Distance(area.Center, out[i].Position()), geo.Distance(area.Center, out[j].Position())
			if di != dj {
				return di < dj
			}
			return out[i].EntityID() < out[j].EntityID()
		})
		out = out[:area.Limit]
	}
	return out, nil
}

// Snapshot returns every point, subscriber, event and waste type with joined
// fields filled. Reporting uses it as its in-memory fact source.
func (r *InMemoryRepository) Snapshot() ([]CollectionPoint, []Subscriber, []CollectionEvent, []WasteType) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	points := make([]CollectionPoint, 0, len(r.points))
	for _, p := range r.points {
		points = append(points, p)
	}
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		subs = append(subs, r.withPoint(s))
	}
	events := make([]CollectionEvent, 0, len(r.events))
	for _, e := range r.events {
		events = append(events, r.withRefs(e))
	}
	types := make([]WasteType, 0, len(r.wasteTypes))
	for _, wt := range r.wasteTypes {
		types = append(types, wt)
	}
	return points, subs, events, types
}
