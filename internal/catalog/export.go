package catalog

import "github.com/onnwee/wastemap/internal/export"

var (
	pointSchema = []export.Column{
		{Field: "id", Label: "ID"},
		{Field: "name", Label: "Name"},
		{Field: "address", Label: "Address"},
		{Field: "latitude", Label: "Latitude"},
		{Field: "longitude", Label: "Longitude"},
		{Field: "local_government_area", Label: "Local Government Area"},
		{Field: "is_active", Label: "Active"},
		{Field: "notes", Label: "Notes"},
	}

	subscriberSchema = []export.Column{
		{Field: "id", Label: "ID"},
		{Field: "business_name", Label: "Business Name"},
		{Field: "business_type", Label: "Business Type"},
		{Field: "service_category", Label: "Service Category"},
		{Field: "contact_person", Label: "Contact Person"},
		{Field: "email", Label: "Email"},
		{Field: "phone", Label: "Phone"},
		{Field: "address", Label: "Address"},
		{Field: "latitude", Label: "Latitude"},
		{Field: "longitude", Label: "Longitude"},
		{Field: "collection_point_name", Label: "Collection Point"},
		{Field: "local_government_area", Label: "Local Government Area"},
		{Field: "is_active", Label: "Active"},
	}

	eventSchema = []export.Column{
		{Field: "id", Label: "ID"},
		{Field: "collection_date", Label: "Collection Date"},
		{Field: "collection_point_name", Label: "Collection Point"},
		{Field: "local_government_area", Label: "Local Government Area"},
		{Field: "waste_type_name", Label: "Waste Type"},
		{Field: "volume_cubic_meters", Label: "Volume (m³)"},
		{Field: "weight_tons", Label: "Weight (tons)"},
		{Field: "crew_members", Label: "Crew Members"},
		{Field: "notes", Label: "Notes"},
	}

	wasteTypeSchema = []export.Column{
		{Field: "id", Label: "ID"},
		{Field: "name", Label: "Name"},
		{Field: "description", Label: "Description"},
	}
)

// Schema returns the export columns for kind.
func Schema(kind EntityKind) []export.Column {
	switch kind {
	case KindCollectionPoint:
		return pointSchema
	case KindSubscriber:
		return subscriberSchema
	case KindCollectionEvent:
		return eventSchema
	case KindWasteType:
		return wasteTypeSchema
	}
	return nil
}

// Filename returns the download name for a CSV listing of kind.
func Filename(kind EntityKind) string {
	return string(kind) + ".csv"
}

// Rows flattens the listing for export.
func (l *Listing) Rows() []export.Row {
	rows := make([]export.Row, 0, l.Len())
	switch l.Kind {
	case KindCollectionPoint:
		for _, p := range l.Points {
			rows = append(rows, export.Row{
				"id":                    p.ID,
				"name":                  p.Name,
				"address":               p.Address,
				"latitude":              p.Location.Lat(),
				"longitude":             p.Location.Lng(),
				"local_government_area": p.Jurisdiction,
				"is_active":             p.Active,
				"notes":                 p.Notes,
			})
		}
	case KindSubscriber:
		for _, s := range l.Subscribers {
			rows = append(rows, export.Row{
				"id":                    s.ID,
				"business_name":         s.BusinessName,
				"business_type":         s.BusinessType,
				"service_category":      s.ServiceCategory,
				"contact_person":        s.ContactPerson,
				"email":                 s.Email,
				"phone":                 s.Phone,
				"address":               s.Address,
				"latitude":              s.Location.Lat(),
				"longitude":             s.Location.Lng(),
				"collection_point_name": s.CollectionPointName,
				"local_government_area": s.Jurisdiction,
				"is_active":             s.Active,
			})
		}
	case KindCollectionEvent:
		for _, e := range l.Events {
			rows = append(rows, export.Row{
				"id":                    e.ID,
				"collection_date":       e.CollectedAt,
				"collection_point_name": e.CollectionPointName,
				"local_government_area": e.Jurisdiction,
				"waste_type_name":       e.WasteTypeName,
				"volume_cubic_meters":   e.VolumeCubicMeters,
				"weight_tons":           e.WeightTons,
				"crew_members":          e.CrewMembers,
				"notes":                 e.Notes,
			})
		}
	case KindWasteType:
		for _, wt := range l.WasteTypes {
			rows = append(rows, export.Row{
				"id":          wt.ID,
				"name":        wt.Name,
				"description": wt.Description,
			})
		}
	}
	return rows
}
