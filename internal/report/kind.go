package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/onnwee/wastemap/internal/apperr"
)

// Kind names a report shape.
type Kind string

const (
	KindCollectionSummary  Kind = "collection_summary"
	KindSubscriberActivity Kind = "subscriber_activity"
	KindPointPerformance   Kind = "collection_point_performance"
	KindAuditTrail         Kind = "audit_trail"
	KindCollectionStats    Kind = "collection_stats"
	KindDashboard          Kind = "dashboard"
)

// Kinds lists every report kind.
var Kinds = []Kind{
	KindCollectionSummary,
	KindSubscriberActivity,
	KindPointPerformance,
	KindAuditTrail,
	KindCollectionStats,
	KindDashboard,
}

var kindAliases = map[string]Kind{
	"waste_collection_summary": KindCollectionSummary,
	"summary":                  KindCollectionSummary,
	"activity":                 KindSubscriberActivity,
	"performance":              KindPointPerformance,
	"audit":                    KindAuditTrail,
	"stats":                    KindCollectionStats,
}

// ParseKind accepts kind names in snake or kebab case and a few short forms.
func ParseKind(s string) (Kind, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if k := Kind(norm); slices.Contains(Kinds, k) {
		return k, nil
	}
	if k, ok := kindAliases[norm]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown report kind %q", apperr.ErrInvalidQuery, s)
}

// Period is a time bucket size.
type Period string

const (
	PeriodNone    Period = "none"
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Dimension is a categorical group-by column.
type Dimension string

const (
	DimJurisdiction Dimension = "jurisdiction"
	DimWasteType    Dimension = "waste_type"
	DimSubscriber   Dimension = "subscriber"
)

// GroupBy is a report's grouping: an optional time bucket plus dimensions.
type GroupBy struct {
	Period     Period      `json:"period"`
	Dimensions []Dimension `json:"dimensions"`
}

// Has reports whether d is one of g's dimensions.
func (g GroupBy) Has(d Dimension) bool {
	return slices.Contains(g.Dimensions, d)
}

func (g GroupBy) String() string {
	dims := make([]string, len(g.Dimensions))
	for i, d := range g.Dimensions {
		dims[i] = string(d)
	}
	return string(g.Period) + "/" + strings.Join(dims, ",")
}

// grouping lists what a kind can be grouped by and its default.
type grouping struct {
	periods  bool
	allowed  []Dimension
	implicit []Dimension
	fallback GroupBy
}

var groupings = map[Kind]grouping{
	KindCollectionSummary: {
		periods:  true,
		allowed:  []Dimension{DimJurisdiction, DimWasteType},
		fallback: GroupBy{Period: PeriodMonthly, Dimensions: []Dimension{DimJurisdiction, DimWasteType}},
	},
	KindCollectionStats: {
		periods:  true,
		allowed:  []Dimension{DimJurisdiction, DimWasteType},
		fallback: GroupBy{Period: PeriodNone, Dimensions: []Dimension{DimJurisdiction, DimWasteType}},
	},
	KindSubscriberActivity: {
		periods:  true,
		allowed:  []Dimension{DimSubscriber, DimWasteType},
		implicit: []Dimension{DimSubscriber},
		fallback: GroupBy{Period: PeriodNone, Dimensions: []Dimension{DimSubscriber}},
	},
	KindPointPerformance: {
		periods:  true,
		allowed:  []Dimension{DimWasteType},
		fallback: GroupBy{Period: PeriodNone},
	},
	KindAuditTrail: {fallback: GroupBy{Period: PeriodNone}},
	KindDashboard:  {fallback: GroupBy{Period: PeriodNone}},
}

// DefaultGroupBy returns the grouping kind uses when none is requested.
func DefaultGroupBy(kind Kind) GroupBy {
	g := groupings[kind].fallback
	g.Dimensions = slices.Clone(g.Dimensions)
	return g
}

// ParseGroupBy reads the period and comma-separated dimensions of a request.
// Empty inputs fall back to the kind's defaults.
func ParseGroupBy(kind Kind, period, dimensions string) (GroupBy, error) {
	g := DefaultGroupBy(kind)
	if p := strings.ToLower(strings.TrimSpace(period)); p != "" {
		g.Period = Period(p)
	}
	if strings.TrimSpace(dimensions) != "" {
		g.Dimensions = nil
		for _, d := range strings.Split(dimensions, ",") {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				g.Dimensions = append(g.Dimensions, Dimension(d))
			}
		}
	}
	return resolveGroupBy(kind, g)
}

// resolveGroupBy validates g for kind and adds implicit dimensions.
func resolveGroupBy(kind Kind, g GroupBy) (GroupBy, error) {
	rule, ok := groupings[kind]
	if !ok {
		return GroupBy{}, fmt.Errorf("%w: unknown report kind %q", apperr.ErrInvalidQuery, kind)
	}

	switch g.Period {
	case "":
		g.Period = PeriodNone
	case PeriodNone:
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		if !rule.periods {
			return GroupBy{}, fmt.Errorf("%w: %s reports cannot be grouped by period", apperr.ErrInvalidQuery, kind)
		}
	default:
		return GroupBy{}, fmt.Errorf("%w: unknown period %q", apperr.ErrInvalidQuery, g.Period)
	}

	var dims []Dimension
	for _, d := range g.Dimensions {
		if !slices.Contains(rule.allowed, d) {
			return GroupBy{}, fmt.Errorf("%w: %s reports cannot be grouped by %q", apperr.ErrInvalidQuery, kind, d)
		}
		if !slices.Contains(dims, d) {
			dims = append(dims, d)
		}
	}
	for _, d := range rule.implicit {
		if !slices.Contains(dims, d) {
			dims = append([]Dimension{d}, dims...)
		}
	}
	g.Dimensions = dims
	return g, nil
}
