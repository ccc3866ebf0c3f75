package report

import (
	"cmp"
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/onnwee/wastemap/internal/export"
)

// Bucket truncates t to the start of its period in loc. Weeks start on
// Monday as in ISO 8601. PeriodNone returns t unchanged.
func Bucket(t time.Time, p Period, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	switch p {
	case PeriodDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case PeriodWeekly:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	}
	return t
}

// Row fields shared by the aggregate report shapes.
const (
	fieldPeriod          = "period"
	fieldJurisdiction    = "local_government_area"
	fieldWasteType       = "waste_type"
	fieldCount           = "collection_count"
	fieldVolume          = "total_volume"
	fieldWeight          = "total_weight"
	fieldAvgWeight       = "avg_weight_per_collection"
	fieldSubscriberCount = "subscriber_count"
	fieldWasteTypes      = "waste_types_handled"
)

type groupKey struct {
	entity       string
	period       int64
	hasPeriod    bool
	jurisdiction string
	hasJuris     bool
	wasteType    string
	hasWaste     bool
}

// group accumulates the measures of one output row. Absent dimensions are
// nil pointers.
type group struct {
	entity       string
	base         export.Row
	period       *time.Time
	jurisdiction *string
	wasteType    *string

	count      int
	volume     float64
	weight     float64
	wasteTypes map[string]struct{}

	subscriberCount int
}

func (g *group) add(ev *EventFact) {
	if ev == nil {
		return
	}
	g.count++
	g.volume += ev.VolumeCubicMeters
	g.weight += ev.WeightTons
	if ev.WasteType != "" {
		g.wasteTypes[ev.WasteType] = struct{}{}
	}
}

// avgWeight is zero for a group with no events.
func (g *group) avgWeight() float64 {
	if g.count == 0 {
		return 0
	}
	return g.weight / float64(g.count)
}

// aggregator buckets facts into groups keyed by entity, period and the
// requested dimensions.
type aggregator struct {
	loc    *time.Location
	by     GroupBy
	groups map[groupKey]*group
	list   []*group
}

func newAggregator(by GroupBy, loc *time.Location) *aggregator {
	return &aggregator{loc: loc, by: by, groups: make(map[groupKey]*group)}
}

// add folds one fact into its group. entity identifies the row's subject
// ("" for event-only reports); jurisdiction is the subject's own
// jurisdiction, or nil to take it from the event.
func (a *aggregator) add(entity string, base export.Row, jurisdiction *string, ev *EventFact) *group {
	key := groupKey{entity: entity}
	var period *time.Time
	if a.by.Period != PeriodNone && ev != nil {
		p := Bucket(ev.CollectedAt, a.by.Period, a.loc)
		period = &p
		key.period, key.hasPeriod = p.Unix(), true
	}

	var juris *string
	if a.by.Has(DimJurisdiction) {
		switch {
		case jurisdiction != nil:
			juris = jurisdiction
		case ev != nil:
			juris = &ev.Jurisdiction
		}
		if juris != nil {
			key.jurisdiction, key.hasJuris = *juris, true
		}
	}

	var waste *string
	if a.by.Has(DimWasteType) && ev != nil {
		waste = &ev.WasteType
		key.wasteType, key.hasWaste = ev.WasteType, true
	}

	g, ok := a.groups[key]
	if !ok {
		g = &group{
			entity:       entity,
			base:         base,
			period:       period,
			jurisdiction: juris,
			wasteType:    waste,
			wasteTypes:   make(map[string]struct{}),
		}
		a.groups[key] = g
		a.list = append(a.list, g)
	}
	g.add(ev)
	return g
}

// row renders g with the dimension and measure fields of the grouping.
func (a *aggregator) row(g *group) export.Row {
	row := make(export.Row, len(g.base)+8)
	maps.Copy(row, g.base)

	if a.by.Period != PeriodNone {
		row[fieldPeriod] = derefTime(g.period)
	}
	if a.by.Has(DimJurisdiction) {
		row[fieldJurisdiction] = derefString(g.jurisdiction)
	}
	if a.by.Has(DimWasteType) {
		row[fieldWasteType] = derefString(g.wasteType)
	}
	row[fieldCount] = g.count
	row[fieldVolume] = g.volume
	row[fieldWeight] = g.weight
	row[fieldAvgWeight] = g.avgWeight()
	return row
}

func derefTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// comparator orders two groups; negative means a sorts first.
type comparator func(a, b *group) int

func sortGroups(groups []*group, keys ...comparator) {
	sort.SliceStable(groups, func(i, j int) bool {
		for _, k := range keys {
			if c := k(groups[i], groups[j]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// nilsLast orders present values by less and absent ones after them.
func nilsLast[T any](a, b *T, compare func(x, y T) int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return compare(*a, *b)
}

func byPeriodDesc(a, b *group) int {
	return nilsLast(a.period, b.period, func(x, y time.Time) int { return y.Compare(x) })
}

func byJurisdiction(a, b *group) int {
	return nilsLast(a.jurisdiction, b.jurisdiction, cmp.Compare[string])
}

func byWasteType(a, b *group) int {
	return nilsLast(a.wasteType, b.wasteType, cmp.Compare[string])
}

func byWeightDesc(a, b *group) int {
	return cmp.Compare(b.weight, a.weight)
}

func byEntity(a, b *group) int {
	return cmp.Compare(a.entity, b.entity)
}

// byBaseField orders by a string field of the entity row, absent last.
func byBaseField(field string) comparator {
	return func(a, b *group) int {
		as, aok := a.base[field].(string)
		bs, bok := b.base[field].(string)
		var ap, bp *string
		if aok {
			ap = &as
		}
		if bok {
			bp = &bs
		}
		return nilsLast(ap, bp, cmp.Compare[string])
	}
}

func sortedKeys(set map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(set))
}
