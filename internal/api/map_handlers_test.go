package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/onnwee/wastemap/internal/mapview"
)

func TestMapConfig_DefaultCenter(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/api/map/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	v := decodeBody[mapview.Viewport](t, w)
	if v.Center != [2]float64{6.5244, 3.3792} {
		t.Errorf("expected Lagos center without points, got %v", v.Center)
	}
	if v.Zoom != 11 || v.MinZoom != 9 || v.MaxZoom != 18 {
		t.Errorf("unexpected zoom levels %+v", v)
	}
	if v.Bounds != nil {
		t.Errorf("expected no bounds without points, got %v", *v.Bounds)
	}
}

func TestMapConfig_FitsActivePoints(t *testing.T) {
	a := newTestAPI(t)
	a.point(t, "North", "Ikeja", 6.6, 3.3)
	a.point(t, "South", "Lekki", 6.4, 3.5)
	closed := a.point(t, "Closed", "Epe", 6.58, 3.98)
	if err := a.service.DeactivatePoint(context.Background(), closed.ID); err != nil {
		t.Fatalf("DeactivatePoint() error = %v", err)
	}

	v := decodeBody[mapview.Viewport](t, a.do(t, http.MethodGet, "/api/map/config", ""))
	if v.Bounds == nil {
		t.Fatal("expected bounds around active points")
	}
	want := [2][2]float64{{6.4, 3.3}, {6.6, 3.5}}
	if *v.Bounds != want {
		t.Errorf("expected bounds %v, got %v", want, *v.Bounds)
	}
	if !approxEqual(v.Center[0], 6.5) || !approxEqual(v.Center[1], 3.4) {
		t.Errorf("expected center at the active points' mean, got %v", v.Center)
	}
}

func approxEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
