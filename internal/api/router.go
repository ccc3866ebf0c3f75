package api

import (
	"net/http"

	"github.com/onnwee/wastemap/internal/catalog"
)

// Routes holds the handler groups mounted by NewRouter. Metrics is
// optional; nil leaves /metrics unmounted.
type Routes struct {
	Catalog *CatalogHandlers
	Reports *ReportHandlers
	Map     *MapHandlers
	Health  *HealthHandlers
	Metrics http.Handler
}

// NewRouter mounts every API route on a new ServeMux.
func NewRouter(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()

	c := rt.Catalog
	mux.HandleFunc("GET /api/collection-points", c.List(catalog.KindCollectionPoint))
	mux.HandleFunc("GET /api/collection-points/nearby", c.Nearby(catalog.KindCollectionPoint))
	mux.HandleFunc("GET /api/collection-points/{id}", c.GetPoint)
	mux.HandleFunc("POST /api/collection-points", c.CreatePoint)
	mux.HandleFunc("PUT /api/collection-points/{id}", c.UpdatePoint)
	mux.HandleFunc("DELETE /api/collection-points/{id}", c.DeactivatePoint)

	mux.HandleFunc("GET /api/subscribers", c.List(catalog.KindSubscriber))
	mux.HandleFunc("GET /api/subscribers/nearby", c.Nearby(catalog.KindSubscriber))
	mux.HandleFunc("GET /api/subscribers/types", c.BusinessTypes)
	mux.HandleFunc("GET /api/subscribers/categories", c.ServiceCategories)
	mux.HandleFunc("GET /api/subscribers/{id}", c.GetSubscriber)
	mux.HandleFunc("POST /api/subscribers", c.CreateSubscriber)
	mux.HandleFunc("PUT /api/subscribers/{id}", c.UpdateSubscriber)
	mux.HandleFunc("DELETE /api/subscribers/{id}", c.DeactivateSubscriber)

	mux.HandleFunc("GET /api/collection-events", c.List(catalog.KindCollectionEvent))
	mux.HandleFunc("GET /api/collection-events/{id}", c.GetEvent)
	mux.HandleFunc("POST /api/collection-events", c.CreateEvent)
	mux.HandleFunc("PUT /api/collection-events/{id}", c.UpdateEvent)
	mux.HandleFunc("DELETE /api/collection-events/{id}", c.DeleteEvent)

	mux.HandleFunc("GET /api/waste-types", c.WasteTypes)

	mux.HandleFunc("GET /api/reports/{kind}", rt.Reports.Get)
	mux.HandleFunc("POST /api/reports/{kind}/archive", rt.Reports.Archive)

	mux.HandleFunc("GET /api/map/config", rt.Map.Config)

	mux.HandleFunc("GET /health", rt.Health.Health)
	mux.HandleFunc("GET /ready", rt.Health.Ready)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	return mux
}
