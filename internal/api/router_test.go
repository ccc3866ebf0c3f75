package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/wastemap/internal/mapview"
)

func TestRouter_Routes(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/api/collection-points", http.StatusOK},
		{http.MethodGet, "/api/subscribers", http.StatusOK},
		{http.MethodGet, "/api/subscribers/categories", http.StatusOK},
		{http.MethodGet, "/api/collection-events", http.StatusOK},
		{http.MethodGet, "/api/waste-types", http.StatusOK},
		{http.MethodGet, "/api/reports/dashboard", http.StatusOK},
		{http.MethodGet, "/api/map/config", http.StatusOK},
		{http.MethodPatch, "/api/collection-points", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/waste-types", http.StatusMethodNotAllowed},
		{http.MethodGet, "/metrics", http.StatusNotFound},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			if w := a.do(t, tt.method, tt.target, ""); w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	a := newTestAPI(t)
	mux := NewRouter(Routes{
		Catalog: NewCatalogHandlers(a.service, nil),
		Reports: NewReportHandlers(ReportHandlersConfig{}),
		Map:     NewMapHandlers(a.service, mapview.DefaultConfig()),
		Health:  NewHealthHandlers(HealthHandlersConfig{}),
		Metrics: metrics,
	})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusTeapot {
		t.Errorf("expected metrics handler to be mounted, got %d", w.Code)
	}
}
