package report

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/audit"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/export"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/geo"
)

type fixture struct {
	repo    *catalog.InMemoryRepository
	audit   *audit.InMemoryRepository
	engine  *Engine
	organic catalog.WasteType
	plastic catalog.WasteType
	ikeja   catalog.CollectionPoint
	lekki   catalog.CollectionPoint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		repo:  catalog.NewInMemoryRepository(),
		audit: audit.NewInMemoryRepository(),
	}
	f.organic = f.repo.AddWasteType(catalog.WasteType{Name: "organic"})
	f.plastic = f.repo.AddWasteType(catalog.WasteType{Name: "plastic"})

	f.ikeja = catalog.CollectionPoint{Name: "Ikeja Depot", Location: geo.MustLocation(6.60, 3.35), Jurisdiction: "Ikeja", Active: true}
	f.lekki = catalog.CollectionPoint{Name: "Lekki Depot", Location: geo.MustLocation(6.45, 3.55), Jurisdiction: "Lekki", Active: true}
	for _, p := range []*catalog.CollectionPoint{&f.ikeja, &f.lekki} {
		if err := f.repo.CreatePoint(ctx, p); err != nil {
			t.Fatalf("CreatePoint() error = %v", err)
		}
	}

	f.engine = NewEngine(NewInMemorySource(f.repo, f.audit), time.UTC, nil)
	return f
}

func (f *fixture) event(t *testing.T, p catalog.CollectionPoint, wt catalog.WasteType, at time.Time, weight float64) {
	t.Helper()
	e := &catalog.CollectionEvent{
		CollectionPointID: p.ID,
		WasteTypeID:       wt.ID,
		CollectedAt:       at,
		VolumeCubicMeters: weight * 2,
		WeightTons:        weight,
	}
	if err := f.repo.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
}

func (f *fixture) subscriber(t *testing.T, name string, p catalog.CollectionPoint, active bool) catalog.Subscriber {
	t.Helper()
	s := catalog.Subscriber{
		BusinessName:      name,
		BusinessType:      "restaurant",
		ServiceCategory:   "commercial",
		Location:          geo.MustLocation(6.5, 3.4),
		CollectionPointID: p.ID,
		Active:            active,
	}
	if err := f.repo.CreateSubscriber(context.Background(), &s); err != nil {
		t.Fatalf("CreateSubscriber() error = %v", err)
	}
	return s
}

func day(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func run(t *testing.T, e *Engine, req Request) *Result {
	t.Helper()
	res, err := e.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run(%s) error = %v", req.Kind, err)
	}
	return res
}

func TestEngine_DailySummary(t *testing.T) {
	f := newFixture(t)
	f.event(t, f.ikeja, f.organic, day(2024, 1, 5, 9), 1.2)
	f.event(t, f.ikeja, f.organic, day(2024, 1, 5, 15), 1.2)
	f.event(t, f.ikeja, f.organic, day(2024, 1, 6, 10), 0.5)
	f.event(t, f.ikeja, f.organic, day(2024, 2, 1, 0), 9)

	res := run(t, f.engine, Request{
		Kind:    KindCollectionSummary,
		Filters: filter.Values{filter.KeyStartDate: "2024-01-01", filter.KeyEndDate: "2024-01-31"},
		GroupBy: &GroupBy{Period: PeriodDaily, Dimensions: []Dimension{DimWasteType}},
	})

	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2: %v", len(res.Rows), res.Rows)
	}
	want := []struct {
		period time.Time
		count  int
		weight float64
	}{
		{day(2024, 1, 6, 0), 1, 0.5},
		{day(2024, 1, 5, 0), 2, 2.4},
	}
	for i, w := range want {
		row := res.Rows[i]
		if got := row[fieldPeriod].(time.Time); !got.Equal(w.period) {
			t.Errorf("row %d period = %v, want %v", i, got, w.period)
		}
		if row[fieldWasteType] != "organic" {
			t.Errorf("row %d waste type = %v, want organic", i, row[fieldWasteType])
		}
		if row[fieldCount] != w.count {
			t.Errorf("row %d count = %v, want %d", i, row[fieldCount], w.count)
		}
		if !approx(row[fieldWeight].(float64), w.weight) {
			t.Errorf("row %d weight = %v, want %v", i, row[fieldWeight], w.weight)
		}
		if _, ok := row[fieldJurisdiction]; ok {
			t.Errorf("row %d has jurisdiction without that dimension", i)
		}
	}
	if !approx(res.Rows[1][fieldAvgWeight].(float64), 1.2) {
		t.Errorf("avg weight = %v, want 1.2", res.Rows[1][fieldAvgWeight])
	}
}

func TestEngine_DefaultGroupingAndOrder(t *testing.T) {
	f := newFixture(t)
	f.event(t, f.lekki, f.plastic, day(2024, 3, 2, 8), 1)
	f.event(t, f.ikeja, f.plastic, day(2024, 3, 9, 8), 1)
	f.event(t, f.ikeja, f.organic, day(2024, 3, 9, 8), 1)
	f.event(t, f.ikeja, f.organic, day(2024, 2, 20, 8), 1)

	res := run(t, f.engine, Request{Kind: KindCollectionSummary})
	if res.GroupBy.Period != PeriodMonthly || !res.GroupBy.Has(DimJurisdiction) || !res.GroupBy.Has(DimWasteType) {
		t.Fatalf("default grouping = %s", res.GroupBy)
	}

	var got []string
	for _, r := range res.Rows {
		got = append(got, r[fieldPeriod].(time.Time).Format("2006-01")+" "+r[fieldJurisdiction].(string)+" "+r[fieldWasteType].(string))
	}
	want := []string{
		"2024-03 Ikeja organic",
		"2024-03 Ikeja plastic",
		"2024-03 Lekki plastic",
		"2024-02 Ikeja organic",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("rows = %v, want %v", got, want)
	}
}

func TestEngine_CollectionStats(t *testing.T) {
	f := newFixture(t)
	f.event(t, f.ikeja, f.organic, day(2024, 3, 2, 8), 1)
	f.event(t, f.ikeja, f.plastic, day(2024, 3, 2, 8), 4)
	f.event(t, f.lekki, f.organic, day(2024, 3, 2, 8), 2)

	res := run(t, f.engine, Request{
		Kind:    KindCollectionStats,
		Filters: filter.Values{filter.KeyJurisdiction: "Ikeja"},
	})
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}
	if res.Rows[0][fieldWasteType] != "plastic" || res.Rows[1][fieldWasteType] != "organic" {
		t.Errorf("stats must list the heaviest waste type first, got %v then %v",
			res.Rows[0][fieldWasteType], res.Rows[1][fieldWasteType])
	}
	if _, ok := res.Rows[0][fieldPeriod]; ok {
		t.Error("ungrouped-by-period stats must not carry a period field")
	}
}

func TestEngine_PointPerformance_ZeroEvents(t *testing.T) {
	f := newFixture(t)
	f.subscriber(t, "Mama Put", f.ikeja, true)
	f.subscriber(t, "Old Bar", f.ikeja, false)
	f.event(t, f.ikeja, f.organic, day(2024, 1, 5, 9), 3)
	f.event(t, f.ikeja, f.plastic, day(2024, 1, 6, 9), 1)

	res := run(t, f.engine, Request{
		Kind:    KindPointPerformance,
		Filters: filter.Values{filter.KeyStartDate: "2024-01-01", filter.KeyEndDate: "2024-01-31"},
	})
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2 (points without events are kept)", len(res.Rows))
	}

	busy, idle := res.Rows[0], res.Rows[1]
	if busy["collection_point_name"] != "Ikeja Depot" {
		t.Fatalf("first row = %v, want Ikeja Depot", busy["collection_point_name"])
	}
	if busy[fieldCount] != 2 || !approx(busy[fieldWeight].(float64), 4) || !approx(busy[fieldAvgWeight].(float64), 2) {
		t.Errorf("busy row measures = %v", busy)
	}
	if busy[fieldSubscriberCount] != 1 {
		t.Errorf("subscriber_count = %v, want 1 (inactive excluded)", busy[fieldSubscriberCount])
	}
	if got := busy[fieldWasteTypes].([]string); strings.Join(got, ",") != "organic,plastic" {
		t.Errorf("waste_types_handled = %v", got)
	}

	if idle["collection_point_name"] != "Lekki Depot" {
		t.Fatalf("second row = %v, want Lekki Depot", idle["collection_point_name"])
	}
	if idle[fieldCount] != 0 || idle[fieldWeight] != 0.0 || idle[fieldAvgWeight] != 0.0 {
		t.Errorf("zero-event row measures = %v, want zeros", idle)
	}
	if got := idle[fieldWasteTypes].([]string); len(got) != 0 {
		t.Errorf("zero-event waste_types_handled = %v", got)
	}
}

func TestEngine_PointPerformance_NullsLast(t *testing.T) {
	f := newFixture(t)
	f.event(t, f.ikeja, f.organic, day(2024, 1, 5, 9), 0)

	res := run(t, f.engine, Request{
		Kind:    KindPointPerformance,
		GroupBy: &GroupBy{Period: PeriodMonthly, Dimensions: []Dimension{DimWasteType}},
	})
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}
	if res.Rows[0]["collection_point_name"] != "Ikeja Depot" {
		t.Errorf("rows with a period must sort before rows without, got %v first", res.Rows[0]["collection_point_name"])
	}
	if res.Rows[1][fieldPeriod] != nil || res.Rows[1][fieldWasteType] != nil {
		t.Errorf("zero-event row dimensions = %v/%v, want nil", res.Rows[1][fieldPeriod], res.Rows[1][fieldWasteType])
	}
}

func TestEngine_SubscriberActivity(t *testing.T) {
	f := newFixture(t)
	f.subscriber(t, "Mama Put", f.ikeja, true)
	f.subscriber(t, "Bukka Hut", f.lekki, true)
	f.subscriber(t, "Closed Shop", f.ikeja, false)
	f.event(t, f.ikeja, f.organic, day(2024, 1, 5, 9), 2)
	f.event(t, f.ikeja, f.organic, day(2024, 1, 9, 9), 1)

	res := run(t, f.engine, Request{Kind: KindSubscriberActivity})
	if !res.GroupBy.Has(DimSubscriber) {
		t.Errorf("subscriber dimension must be implicit, got %s", res.GroupBy)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}
	if res.Rows[0]["business_name"] != "Mama Put" || res.Rows[0][fieldCount] != 2 {
		t.Errorf("first row = %v", res.Rows[0])
	}
	if res.Rows[1]["business_name"] != "Bukka Hut" || res.Rows[1][fieldCount] != 0 {
		t.Errorf("second row = %v", res.Rows[1])
	}
	if res.Rows[1][fieldJurisdiction] != "Lekki" {
		t.Errorf("jurisdiction = %v, want Lekki", res.Rows[1][fieldJurisdiction])
	}

	res = run(t, f.engine, Request{
		Kind:    KindSubscriberActivity,
		Filters: filter.Values{filter.KeyBusinessType: "bank"},
	})
	if len(res.Rows) != 0 {
		t.Errorf("business type filter kept %d rows", len(res.Rows))
	}
}

func TestEngine_AuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, action := range []string{"create", "update"} {
		if _, err := f.audit.Log(ctx, audit.LogEntry{
			ActorID: "3f1c9a52-0f5e-4a34-9d7e-2b8f6f0e1a11", Action: action, EntityType: "collection_point", EntityID: f.ikeja.ID,
			Changes: []byte(`{"name":"Ikeja Depot"}`),
		}); err != nil {
			t.Fatalf("Log() error = %v", err)
		}
	}

	res := run(t, f.engine, Request{Kind: KindAuditTrail, Filters: filter.Values{filter.KeyAction: "update"}})
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	row := res.Rows[0]
	if row["action"] != "update" || row["table_name"] != "collection_point" || row["record_id"] != f.ikeja.ID {
		t.Errorf("row = %v", row)
	}
	if row["changes"] != `{"name":"Ikeja Depot"}` {
		t.Errorf("changes = %v", row["changes"])
	}

	if _, err := f.engine.Run(ctx, Request{Kind: KindAuditTrail, GroupBy: &GroupBy{Period: PeriodDaily}}); !errors.Is(err, apperr.ErrInvalidQuery) {
		t.Errorf("grouped audit trail error = %v, want ErrInvalidQuery", err)
	}
}

func TestEngine_Dashboard(t *testing.T) {
	f := newFixture(t)
	f.subscriber(t, "Mama Put", f.ikeja, true)
	f.subscriber(t, "Closed Shop", f.ikeja, false)
	f.event(t, f.ikeja, f.organic, day(2023, 12, 30, 9), 5)
	f.event(t, f.lekki, f.organic, day(2024, 1, 5, 9), 1.5)

	res := run(t, f.engine, Request{
		Kind:    KindDashboard,
		Filters: filter.Values{filter.KeyStartDate: "2024-01-01"},
	})
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	row := res.Rows[0]
	if row["total_collection_points"] != 2 || row["total_subscribers"] != 1 {
		t.Errorf("entity totals = %v/%v, want 2/1", row["total_collection_points"], row["total_subscribers"])
	}
	if row["total_collections"] != 1 || !approx(row[fieldWeight].(float64), 1.5) || !approx(row[fieldVolume].(float64), 3) {
		t.Errorf("event totals = %v", row)
	}
}

func TestEngine_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown kind", Request{Kind: "bogus"}, apperr.ErrInvalidQuery},
		{"bad date", Request{Kind: KindCollectionSummary, Filters: filter.Values{filter.KeyStartDate: "yesterday"}}, apperr.ErrMalformedFilter},
		{"bad id", Request{Kind: KindCollectionSummary, Filters: filter.Values{filter.KeyWasteType: "organic"}}, apperr.ErrMalformedFilter},
		{"disallowed dimension", Request{Kind: KindPointPerformance, GroupBy: &GroupBy{Dimensions: []Dimension{DimJurisdiction}}}, apperr.ErrInvalidQuery},
		{"unknown period", Request{Kind: KindCollectionSummary, GroupBy: &GroupBy{Period: "hourly"}}, apperr.ErrInvalidQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.engine.Run(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Run() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEngine_TimezoneBucketing(t *testing.T) {
	lagos, err := time.LoadLocation("Africa/Lagos")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	f := newFixture(t)
	f.engine = NewEngine(NewInMemorySource(f.repo, f.audit), lagos, nil)

	// 23:30 UTC on the 5th is 00:30 on the 6th in Lagos.
	f.event(t, f.ikeja, f.organic, time.Date(2024, 1, 5, 23, 30, 0, 0, time.UTC), 1)

	res := run(t, f.engine, Request{Kind: KindCollectionSummary, GroupBy: &GroupBy{Period: PeriodDaily}})
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	got := res.Rows[0][fieldPeriod].(time.Time)
	if got.Format(time.DateOnly) != "2024-01-06" {
		t.Errorf("period = %s, want 2024-01-06 in engine timezone", got.Format(time.DateOnly))
	}
}

func TestResult_CSV(t *testing.T) {
	f := newFixture(t)
	f.event(t, f.ikeja, f.organic, day(2024, 1, 5, 9), 1.25)

	res := run(t, f.engine, Request{Kind: KindCollectionSummary})
	out, err := export.ToDelimitedText(res.Rows, res.Columns)
	if err != nil {
		t.Fatalf("ToDelimitedText() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "Period,Local Government Area,Waste Type,") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2024-01-01,Ikeja,organic,1,") {
		t.Errorf("row = %q", lines[1])
	}
	if res.Filename() != "waste_collection_summary.csv" {
		t.Errorf("Filename() = %q", res.Filename())
	}
}
