package api

import (
	"net/http"

	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/mapview"
)

// MapHandlers serves the map frontend's bootstrap data.
type MapHandlers struct {
	service *catalog.Service
	config  mapview.Config
}

// NewMapHandlers creates the map handlers.
func NewMapHandlers(service *catalog.Service, config mapview.Config) *MapHandlers {
	return &MapHandlers{service: service, config: config}
}

// Config handles GET /api/map/config. The viewport is fitted to the active
// collection points and falls back to the configured center without any.
func (h *MapHandlers) Config(w http.ResponseWriter, r *http.Request) {
	listing, err := h.service.List(r.Context(), catalog.KindCollectionPoint, filter.Values{})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, mapview.NewViewport(h.config, mapview.ActiveLocations(listing)))
}
