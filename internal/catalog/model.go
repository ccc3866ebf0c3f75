// Package catalog holds the waste-collection entities (collection points,
// subscribers, waste types, collection events), the filter columns each
// entity exposes, and the service that lists and mutates them.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/geo"
)

// EntityKind names a catalog entity type. Its value is the backing table
// name, which is also the entity_type recorded in audit entries.
type EntityKind string

const (
	KindCollectionPoint EntityKind = "collection_points"
	KindSubscriber      EntityKind = "subscribers"
	KindCollectionEvent EntityKind = "collection_events"
	KindWasteType       EntityKind = "waste_types"
)

// ParseKind accepts table names and the singular/hyphenated forms used in URLs.
func ParseKind(s string) (EntityKind, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "collection_points", "collection_point", "points":
		return KindCollectionPoint, nil
	case "subscribers", "subscriber":
		return KindSubscriber, nil
	case "collection_events", "collection_event", "events":
		return KindCollectionEvent, nil
	case "waste_types", "waste_type":
		return KindWasteType, nil
	}
	return "", fmt.Errorf("%w: unknown entity kind %q", apperr.ErrInvalidQuery, s)
}

// Locatable is an entity with a point location that can be active or not.
// Proximity search works over Locatables.
type Locatable interface {
	EntityID() string
	Position() geo.Location
	IsActive() bool
}

// CollectionPoint is a physical site where waste is collected.
type CollectionPoint struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Location     geo.Location `json:"location"`
	Jurisdiction string       `json:"local_government_area"`
	Notes        string       `json:"notes,omitempty"`
	Active       bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (p CollectionPoint) EntityID() string       { return p.ID }
func (p CollectionPoint) Position() geo.Location { return p.Location }
func (p CollectionPoint) IsActive() bool         { return p.Active }

// FilterTime implements filter.Record. Points are not filtered by date.
func (p CollectionPoint) FilterTime() (time.Time, bool) { return time.Time{}, false }

// FilterValue implements filter.Record.
func (p CollectionPoint) FilterValue(k filter.Key) (string, bool) {
	switch k {
	case filter.KeyJurisdiction:
		return p.Jurisdiction, true
	case filter.KeyCollectionPoint:
		return p.ID, true
	}
	return "", false
}

// FilterLocation implements filter.Record.
func (p CollectionPoint) FilterLocation() (geo.Location, bool) { return p.Location, true }

// Subscriber is a business enrolled in the collection service.
type Subscriber struct {
	ID                string       `json:"id"`
	BusinessName      string       `json:"business_name"`
	BusinessType      string       `json:"business_type"`
	ServiceCategory   string       `json:"service_category"`
	ContactPerson     string       `json:"contact_person,omitempty"`
	Email             string       `json:"email,omitempty"`
	Phone             string       `json:"phone,omitempty"`
	Address           string       `json:"address"`
	Location          geo.Location `json:"location"`
	CollectionPointID string       `json:"collection_point_id"`
	Active            bool         `json:"is_active"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`

	// Read-side fields joined from the assigned collection point.
	CollectionPointName string `json:"collection_point_name,omitempty"`
	Jurisdiction        string `json:"local_government_area,omitempty"`
}

func (s Subscriber) EntityID() string       { return s.ID }
func (s Subscriber) Position() geo.Location { return s.Location }
func (s Subscriber) IsActive() bool         { return s.Active }

// FilterTime implements filter.Record. Subscribers are not filtered by date.
func (s Subscriber) FilterTime() (time.Time, bool) { return time.Time{}, false }

// FilterValue implements filter.Record.
func (s Subscriber) FilterValue(k filter.Key) (string, bool) {
	switch k {
	case filter.KeyBusinessType:
		return s.BusinessType, true
	case filter.KeyServiceCategory:
		return s.ServiceCategory, true
	case filter.KeyCollectionPoint:
		return s.CollectionPointID, true
	case filter.KeyJurisdiction:
		return s.Jurisdiction, true
	}
	return "", false
}

// FilterLocation implements filter.Record.
func (s Subscriber) FilterLocation() (geo.Location, bool) { return s.Location, true }

// WasteType classifies collected material, e.g. "organic" or "plastic".
type WasteType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CollectionEvent is one recorded pickup at a collection point.
type CollectionEvent struct {
	ID                string    `json:"id"`
	CollectionPointID string    `json:"collection_point_id"`
	WasteTypeID       string    `json:"waste_type_id"`
	CollectedAt       time.Time `json:"collection_date"`
	VolumeCubicMeters float64   `json:"volume_cubic_meters"`
	WeightTons        float64   `json:"weight_tons"`
	CrewMembers       []string  `json:"crew_members"`
	Notes             string    `json:"notes,omitempty"`
	CreatedBy         string    `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	// Read-side fields joined from the point and waste type.
	CollectionPointName string        `json:"collection_point_name,omitempty"`
	Jurisdiction        string        `json:"local_government_area,omitempty"`
	WasteTypeName       string        `json:"waste_type_name,omitempty"`
	PointLocation       *geo.Location `json:"-"`
}

// FilterTime implements filter.Record.
func (e CollectionEvent) FilterTime() (time.Time, bool) { return e.CollectedAt, true }

// FilterValue implements filter.Record.
func (e CollectionEvent) FilterValue(k filter.Key) (string, bool) {
	switch k {
	case filter.KeyWasteType:
		return e.WasteTypeID, true
	case filter.KeyCollectionPoint:
		return e.CollectionPointID, true
	case filter.KeyJurisdiction:
		return e.Jurisdiction, true
	}
	return "", false
}

// FilterLocation implements filter.Record using the point's location.
func (e CollectionEvent) FilterLocation() (geo.Location, bool) {
	if e.PointLocation == nil {
		return geo.Location{}, false
	}
	return *e.PointLocation, true
}

// Filter columns per target. The aliases match the list queries in postgres.go.
var (
	PointColumns = filter.Columns{
		filter.KeyJurisdiction:    "cp.local_government_area",
		filter.KeyCollectionPoint: "cp.id",
		filter.KeyBounds:          "cp.location",
	}

	SubscriberColumns = filter.Columns{
		filter.KeyJurisdiction:    "cp.local_government_area",
		filter.KeyCollectionPoint: "s.collection_point_id",
		filter.KeyBusinessType:    "s.business_type",
		filter.KeyServiceCategory: "s.service_category",
		filter.KeyBounds:          "s.location",
	}

	EventColumns = filter.Columns{
		filter.KeyStartDate:       "ce.collection_date",
		filter.KeyEndDate:         "ce.collection_date",
		filter.KeyJurisdiction:    "cp.local_government_area",
		filter.KeyWasteType:       "ce.waste_type_id",
		filter.KeyCollectionPoint: "ce.collection_point_id",
		filter.KeyBounds:          "cp.location",
	}
)
