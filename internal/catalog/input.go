package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/geo"
	"github.com/onnwee/wastemap/internal/validate"
)

// PointInput is the create/update payload for a collection point. Field
// names follow the JSON the map frontend sends.
type PointInput struct {
	Name                string  `json:"name"`
	Address             string  `json:"address"`
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
	LocalGovernmentArea string  `json:"localGovernmentArea"`
	Notes               string  `json:"notes"`
	IsActive            *bool   `json:"isActive,omitempty"`
}

// SubscriberInput is the create/update payload for a subscriber.
type SubscriberInput struct {
	BusinessName      string  `json:"businessName"`
	BusinessType      string  `json:"businessType"`
	ServiceCategory   string  `json:"serviceCategory"`
	ContactPerson     string  `json:"contactPerson"`
	Email             string  `json:"email"`
	Phone             string  `json:"phone"`
	Address           string  `json:"address"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	CollectionPointID string   `json:"collectionPointId"`
	IsActive          *bool   `json:"isActive,omitempty"`
}

// EventInput is the create/update payload for a collection event. On update
// the point and waste type are fixed; only the measurements change.
type EventInput struct {
	CollectionPointID string   `json:"collectionPointId"`
	WasteTypeID       string   `json:"wasteTypeId"`
	CollectionDate    string   `json:"collectionDate"`
	VolumeCubicMeters float64  `json:"volumeCubicMeters"`
	WeightTons        float64  `json:"weightTons"`
	CrewMembers       []string `json:"crewMembers"`
	Notes             string   `json:"notes"`
}

// fieldErrors collects validation failures into one ErrInvalidInput.
type fieldErrors []string

func (f *fieldErrors) add(format string, args ...any) {
	*f = append(*f, fmt.Sprintf(format, args...))
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, strings.Join(f, "; "))
}

func (f *fieldErrors) required(name, value string) {
	if strings.TrimSpace(value) == "" {
		f.add("%s is required", name)
	}
}

// text runs check on value and records its failure under name. Empty
// required values are reported by required, not here.
func (f *fieldErrors) text(name, value string, check func(string) (string, error)) string {
	v, err := check(value)
	switch {
	case errors.Is(err, validate.ErrEmpty):
	case err != nil:
		f.add("%s is invalid: %v", name, err)
	}
	return v
}

func optional(maxLength int) func(string) (string, error) {
	return func(s string) (string, error) { return validate.Optional(s, maxLength) }
}

// location requires both coordinates; a missing one is never read as zero.
func (f *fieldErrors) location(lat, lng *float64) geo.Location {
	if lat == nil || lng == nil {
		if lat == nil {
			f.add("latitude is required")
		}
		if lng == nil {
			f.add("longitude is required")
		}
		return geo.Location{}
	}
	loc, err := geo.NewLocation(*lat, *lng)
	if err != nil {
		f.add("latitude/longitude out of range")
	}
	return loc
}

func (f *fieldErrors) optionalID(name, value string) string {
	if value == "" {
		return ""
	}
	id, err := uuid.Parse(value)
	if err != nil {
		f.add("%s must be a UUID", name)
		return ""
	}
	return id.String()
}

func (f *fieldErrors) nonNegative(name string, v float64) {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		f.add("%s must be a non-negative number", name)
	}
}

// point validates in and returns the entity it describes.
func (in PointInput) point() (CollectionPoint, error) {
	var errs fieldErrors
	errs.required("name", in.Name)
	errs.required("localGovernmentArea", in.LocalGovernmentArea)
	name := errs.text("name", in.Name, validate.Name)
	lga := errs.text("localGovernmentArea", in.LocalGovernmentArea, validate.Name)
	address := errs.text("address", in.Address, optional(validate.MaxAddressLength))
	notes := errs.text("notes", in.Notes, optional(validate.MaxNotesLength))
	loc := errs.location(in.Latitude, in.Longitude)
	if err := errs.err(); err != nil {
		return CollectionPoint{}, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return CollectionPoint{
		Name:         name,
		Address:      address,
		Location:     loc,
		Jurisdiction: lga,
		Notes:        notes,
		Active:       active,
	}, nil
}

func (in SubscriberInput) subscriber() (Subscriber, error) {
	var errs fieldErrors
	errs.required("businessName", in.BusinessName)
	errs.required("businessType", in.BusinessType)
	errs.required("serviceCategory", in.ServiceCategory)
	errs.required("collectionPointId", in.CollectionPointID)
	loc := errs.location(in.Latitude, in.Longitude)
	pointID := errs.optionalID("collectionPointId", strings.TrimSpace(in.CollectionPointID))
	businessName := errs.text("businessName", in.BusinessName, validate.Name)
	businessType := errs.text("businessType", in.BusinessType, validate.Name)
	category := errs.text("serviceCategory", in.ServiceCategory, validate.Name)
	contact := errs.text("contactPerson", in.ContactPerson, optional(validate.MaxNameLength))
	email := errs.text("email", in.Email, validate.Email)
	phone := errs.text("phone", in.Phone, validate.Phone)
	address := errs.text("address", in.Address, optional(validate.MaxAddressLength))
	if err := errs.err(); err != nil {
		return Subscriber{}, err
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return Subscriber{
		BusinessName:      businessName,
		BusinessType:      businessType,
		ServiceCategory:   category,
		ContactPerson:     contact,
		Email:             email,
		Phone:             phone,
		Address:           address,
		Location:          loc,
		CollectionPointID: pointID,
		Active:            active,
	}, nil
}

// event validates in. With forUpdate set the point and waste type ids are
// ignored.
func (in EventInput) event(loc *time.Location, forUpdate bool) (CollectionEvent, error) {
	var errs fieldErrors

	var pointID, wasteID string
	if !forUpdate {
		errs.required("collectionPointId", in.CollectionPointID)
		errs.required("wasteTypeId", in.WasteTypeID)
		pointID = errs.optionalID("collectionPointId", strings.TrimSpace(in.CollectionPointID))
		wasteID = errs.optionalID("wasteTypeId", strings.TrimSpace(in.WasteTypeID))
	}

	var collected time.Time
	if strings.TrimSpace(in.CollectionDate) == "" {
		errs.add("collectionDate is required")
	} else if t, err := parseCollectionDate(in.CollectionDate, loc); err != nil {
		errs.add("collectionDate must be YYYY-MM-DD or an RFC 3339 timestamp")
	} else {
		collected = t
	}

	errs.nonNegative("volumeCubicMeters", in.VolumeCubicMeters)
	errs.nonNegative("weightTons", in.WeightTons)
	notes := errs.text("notes", in.Notes, optional(validate.MaxNotesLength))

	if err := errs.err(); err != nil {
		return CollectionEvent{}, err
	}

	crew := make([]string, 0, len(in.CrewMembers))
	for _, m := range in.CrewMembers {
		if m = strings.TrimSpace(m); m != "" {
			crew = append(crew, m)
		}
	}

	return CollectionEvent{
		CollectionPointID: pointID,
		WasteTypeID:       wasteID,
		CollectedAt:       collected,
		VolumeCubicMeters: in.VolumeCubicMeters,
		WeightTons:        in.WeightTons,
		CrewMembers:       crew,
		Notes:             notes,
	}, nil
}

func parseCollectionDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, errors.New("unrecognized date")
}
