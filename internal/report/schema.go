package report

import "github.com/onnwee/wastemap/internal/export"

// Column labels match the CSV headers report consumers already parse.
var (
	colPeriod       = export.Column{Field: fieldPeriod, Label: "Period"}
	colJurisdiction = export.Column{Field: fieldJurisdiction, Label: "Local Government Area"}
	colWasteType    = export.Column{Field: fieldWasteType, Label: "Waste Type"}
	colVolume       = export.Column{Field: fieldVolume, Label: "Total Volume (m³)"}
	colWeight       = export.Column{Field: fieldWeight, Label: "Total Weight (tons)"}
	colAvgWeight    = export.Column{Field: fieldAvgWeight, Label: "Avg Weight per Collection (tons)"}
)

var filenames = map[Kind]string{
	KindCollectionSummary:  "waste_collection_summary.csv",
	KindSubscriberActivity: "subscriber_activity_report.csv",
	KindPointPerformance:   "collection_point_performance.csv",
	KindAuditTrail:         "audit_report.csv",
	KindCollectionStats:    "collection_stats.csv",
	KindDashboard:          "dashboard_stats.csv",
}

// Filename returns the CSV download name for kind.
func Filename(kind Kind) string {
	if name, ok := filenames[kind]; ok {
		return name
	}
	return string(kind) + ".csv"
}

// dimensionColumns returns the period and dimension columns of by, in the
// order rows carry them.
func dimensionColumns(by GroupBy) []export.Column {
	var cols []export.Column
	if by.Period != PeriodNone {
		cols = append(cols, colPeriod)
	}
	if by.Has(DimJurisdiction) {
		cols = append(cols, colJurisdiction)
	}
	if by.Has(DimWasteType) {
		cols = append(cols, colWasteType)
	}
	return cols
}

// Schema returns the export columns of a kind grouped by by.
func Schema(kind Kind, by GroupBy) []export.Column {
	switch kind {
	case KindCollectionSummary:
		cols := dimensionColumns(by)
		return append(cols,
			export.Column{Field: fieldCount, Label: "Collections"},
			colVolume, colWeight, colAvgWeight,
		)

	case KindCollectionStats:
		cols := dimensionColumns(by)
		return append(cols,
			export.Column{Field: fieldCount, Label: "Total Collections"},
			colVolume, colWeight, colAvgWeight,
		)

	case KindSubscriberActivity:
		cols := []export.Column{
			{Field: "business_name", Label: "Business Name"},
			{Field: "business_type", Label: "Business Type"},
			{Field: "service_category", Label: "Service Category"},
			{Field: "collection_point_name", Label: "Collection Point"},
			colJurisdiction,
		}
		cols = append(cols, dimensionColumns(GroupBy{Period: by.Period, Dimensions: withoutJurisdiction(by)})...)
		return append(cols,
			export.Column{Field: fieldCount, Label: "Total Collections"},
			colVolume, colWeight, colAvgWeight,
		)

	case KindPointPerformance:
		cols := []export.Column{
			{Field: "collection_point_name", Label: "Collection Point"},
			colJurisdiction,
		}
		cols = append(cols, dimensionColumns(GroupBy{Period: by.Period, Dimensions: withoutJurisdiction(by)})...)
		return append(cols,
			export.Column{Field: fieldSubscriberCount, Label: "Total Subscribers"},
			export.Column{Field: fieldCount, Label: "Total Collections"},
			colVolume, colWeight, colAvgWeight,
			export.Column{Field: fieldWasteTypes, Label: "Waste Types Handled"},
		)

	case KindAuditTrail:
		return []export.Column{
			{Field: "created_at", Label: "Timestamp"},
			{Field: "actor_id", Label: "Actor ID"},
			{Field: "action", Label: "Action"},
			{Field: "table_name", Label: "Table"},
			{Field: "record_id", Label: "Record ID"},
			{Field: "ip_address", Label: "IP Address"},
			{Field: "request_id", Label: "Request ID"},
			{Field: "changes", Label: "Changes"},
		}

	case KindDashboard:
		return []export.Column{
			{Field: "total_collection_points", Label: "Active Collection Points"},
			{Field: "total_subscribers", Label: "Active Subscribers"},
			{Field: "total_collections", Label: "Total Collections"},
			colVolume, colWeight,
		}
	}
	return nil
}

// withoutJurisdiction drops the jurisdiction dimension, which entity
// reports always carry as an entity field.
func withoutJurisdiction(by GroupBy) []Dimension {
	var dims []Dimension
	for _, d := range by.Dimensions {
		if d != DimJurisdiction {
			dims = append(dims, d)
		}
	}
	return dims
}
