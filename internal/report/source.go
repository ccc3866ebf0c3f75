package report

import (
	"context"
	"time"

	"github.com/onnwee/wastemap/internal/audit"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/filter"
)

// EventFact is one collection event joined with its point and waste type.
type EventFact struct {
	ID                string
	CollectedAt       time.Time
	PointID           string
	PointName         string
	Jurisdiction      string
	WasteTypeID       string
	WasteType         string
	VolumeCubicMeters float64
	WeightTons        float64
}

// SubscriberFact is an active subscriber outer-joined with one event at its
// collection point. Event is nil for a subscriber with no events in range.
type SubscriberFact struct {
	SubscriberID    string
	BusinessName    string
	BusinessType    string
	ServiceCategory string
	PointName       string
	Jurisdiction    string
	Event           *EventFact
}

// PointFact is an active collection point outer-joined with one of its
// events. SubscriberCount counts the point's active subscribers.
type PointFact struct {
	PointID         string
	PointName       string
	Jurisdiction    string
	SubscriberCount int
	Event           *EventFact
}

// Totals are the dashboard figures.
type Totals struct {
	ActivePoints      int
	ActiveSubscribers int
	Collections       int
	VolumeCubicMeters float64
	WeightTons        float64
}

// Source supplies report facts. Each method is one store call and applies
// only the criteria keys its columns below map; all aggregation happens in
// the Engine.
type Source interface {
	Events(ctx context.Context, c filter.Criteria) ([]EventFact, error)
	SubscriberActivity(ctx context.Context, c filter.Criteria) ([]SubscriberFact, error)
	PointPerformance(ctx context.Context, c filter.Criteria) ([]PointFact, error)
	AuditTrail(ctx context.Context, c filter.Criteria) ([]audit.Entry, error)
	Totals(ctx context.Context, c filter.Criteria) (Totals, error)
}

// Filter columns per fact query. Outer-join reports split the vocabulary:
// entity columns go in WHERE, join columns in the event join condition so
// entities without matching events are kept.
var (
	EventFactColumns = catalog.EventColumns

	SubscriberEntityColumns = catalog.SubscriberColumns

	PointEntityColumns = catalog.PointColumns

	EventJoinColumns = filter.Columns{
		filter.KeyStartDate: "ce.collection_date",
		filter.KeyEndDate:   "ce.collection_date",
		filter.KeyWasteType: "ce.waste_type_id",
	}

	AuditColumns = audit.Columns
)
