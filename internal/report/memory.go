package report

import (
	"context"

	"github.com/onnwee/wastemap/internal/audit"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/filter"
)

// InMemorySource serves facts from in-memory repositories, evaluating
// criteria with filter.Criteria.Matches against the same column sets the
// PostgreSQL source uses.
type InMemorySource struct {
	catalog *catalog.InMemoryRepository
	audit   audit.Repository
}

// NewInMemorySource creates an InMemorySource. auditRepo may be nil.
func NewInMemorySource(cat *catalog.InMemoryRepository, auditRepo audit.Repository) *InMemorySource {
	return &InMemorySource{catalog: cat, audit: auditRepo}
}

func eventFact(e catalog.CollectionEvent) EventFact {
	return EventFact{
		ID:                e.ID,
		CollectedAt:       e.CollectedAt,
		PointID:           e.CollectionPointID,
		PointName:         e.CollectionPointName,
		Jurisdiction:      e.Jurisdiction,
		WasteTypeID:       e.WasteTypeID,
		WasteType:         e.WasteTypeName,
		VolumeCubicMeters: e.VolumeCubicMeters,
		WeightTons:        e.WeightTons,
	}
}

// eventsByPoint returns the events matching join criteria, by point id.
func eventsByPoint(events []catalog.CollectionEvent, join filter.Criteria) map[string][]EventFact {
	out := make(map[string][]EventFact)
	for _, e := range events {
		if join.Matches(e) {
			out[e.CollectionPointID] = append(out[e.CollectionPointID], eventFact(e))
		}
	}
	return out
}

// Events implements Source.
func (s *InMemorySource) Events(ctx context.Context, c filter.Criteria) ([]EventFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, _, events, _ := s.catalog.Snapshot()

	c = c.Restrict(EventFactColumns)
	var facts []EventFact
	for _, e := range events {
		if c.Matches(e) {
			facts = append(facts, eventFact(e))
		}
	}
	return facts, nil
}

// SubscriberActivity implements Source.
func (s *InMemorySource) SubscriberActivity(ctx context.Context, c filter.Criteria) ([]SubscriberFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	points, subs, events, _ := s.catalog.Snapshot()

	known := make(map[string]bool, len(points))
	for _, p := range points {
		known[p.ID] = true
	}
	byPoint := eventsByPoint(events, c.Restrict(EventJoinColumns))
	entity := c.Restrict(SubscriberEntityColumns)

	var facts []SubscriberFact
	for _, sub := range subs {
		if !sub.Active || !known[sub.CollectionPointID] || !entity.Matches(sub) {
			continue
		}
		base := SubscriberFact{
			SubscriberID:    sub.ID,
			BusinessName:    sub.BusinessName,
			BusinessType:    sub.BusinessType,
			ServiceCategory: sub.ServiceCategory,
			PointName:       sub.CollectionPointName,
			Jurisdiction:    sub.Jurisdiction,
		}
		evs := byPoint[sub.CollectionPointID]
		if len(evs) == 0 {
			facts = append(facts, base)
			continue
		}
		for i := range evs {
			f := base
			f.Event = &evs[i]
			facts = append(facts, f)
		}
	}
	return facts, nil
}

// PointPerformance implements Source.
func (s *InMemorySource) PointPerformance(ctx context.Context, c filter.Criteria) ([]PointFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	points, subs, events, _ := s.catalog.Snapshot()

	subscribers := make(map[string]int)
	for _, sub := range subs {
		if sub.Active {
			subscribers[sub.CollectionPointID]++
		}
	}
	byPoint := eventsByPoint(events, c.Restrict(EventJoinColumns))
	entity := c.Restrict(PointEntityColumns)

	var facts []PointFact
	for _, p := range points {
		if !p.Active || !entity.Matches(p) {
			continue
		}
		base := PointFact{
			PointID:         p.ID,
			PointName:       p.Name,
			Jurisdiction:    p.Jurisdiction,
			SubscriberCount: subscribers[p.ID],
		}
		evs := byPoint[p.ID]
		if len(evs) == 0 {
			facts = append(facts, base)
			continue
		}
		for i := range evs {
			f := base
			f.Event = &evs[i]
			facts = append(facts, f)
		}
	}
	return facts, nil
}

// AuditTrail implements Source.
func (s *InMemorySource) AuditTrail(ctx context.Context, c filter.Criteria) ([]audit.Entry, error) {
	if s.audit == nil {
		return []audit.Entry{}, nil
	}
	return s.audit.Query(ctx, c.Restrict(AuditColumns), 0)
}

// Totals implements Source.
func (s *InMemorySource) Totals(ctx context.Context, c filter.Criteria) (Totals, error) {
	if err := ctx.Err(); err != nil {
		return Totals{}, err
	}
	points, subs, events, _ := s.catalog.Snapshot()

	var t Totals
	for _, p := range points {
		if p.Active {
			t.ActivePoints++
		}
	}
	for _, sub := range subs {
		if sub.Active {
			t.ActiveSubscribers++
		}
	}
	c = c.Restrict(EventFactColumns)
	for _, e := range events {
		if c.Matches(e) {
			t.Collections++
			t.VolumeCubicMeters += e.VolumeCubicMeters
			t.WeightTons += e.WeightTons
		}
	}
	return t, nil
}
