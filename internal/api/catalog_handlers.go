package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/catalog"
	"github.com/onnwee/wastemap/internal/export"
	"github.com/onnwee/wastemap/internal/filter"
	"github.com/onnwee/wastemap/internal/mapview"
	"github.com/onnwee/wastemap/internal/proximity"
)

// CatalogHandlers serves collection points, subscribers, collection events
// and their lookup lists.
type CatalogHandlers struct {
	service   *catalog.Service
	proximity *proximity.Engine
}

// NewCatalogHandlers creates the catalog handlers.
func NewCatalogHandlers(service *catalog.Service, nearby *proximity.Engine) *CatalogHandlers {
	return &CatalogHandlers{service: service, proximity: nearby}
}

// List returns a handler for GET /api/{kind}. Query parameters are filters
// plus format=json|csv|geojson.
func (h *CatalogHandlers) List(kind catalog.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		format, err := export.ParseFormat(query.Get("format"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		listing, err := h.service.List(r.Context(), kind, filter.FromQuery(query))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		switch format {
		case export.FormatCSV:
			body, err := encodeCSV(listing.Rows(), catalog.Schema(kind))
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeDownload(w, r, format, catalog.Filename(kind), body)
		case export.FormatGeoJSON:
			fc, err := mapview.Collection(listing)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			w.Header().Set("Content-Type", format.ContentType())
			writeJSON(w, r, http.StatusOK, fc)
		default:
			writeJSON(w, r, http.StatusOK, listing.Items())
		}
	}
}

// Nearby returns a handler for GET /api/{kind}/nearby. It takes latitude
// and longitude (required), radius in meters, limit and format=json|geojson.
func (h *CatalogHandlers) Nearby(kind catalog.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		q, err := parseNearby(kind, query.Get("latitude"), query.Get("longitude"), query.Get("radius"), query.Get("limit"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		format, err := export.ParseFormat(query.Get("format"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if format == export.FormatCSV {
			writeServiceError(w, r, fmt.Errorf("%w: nearby results are not available as csv", apperr.ErrInvalidQuery))
			return
		}

		matches, err := h.proximity.Nearby(r.Context(), q)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if format == export.FormatGeoJSON {
			w.Header().Set("Content-Type", format.ContentType())
			writeJSON(w, r, http.StatusOK, mapview.MatchCollection(matches))
			return
		}
		if matches == nil {
			matches = []proximity.Match{}
		}
		writeJSON(w, r, http.StatusOK, matches)
	}
}

func parseNearby(kind catalog.EntityKind, lat, lng, radius, limit string) (proximity.Query, error) {
	if strings.TrimSpace(lat) == "" || strings.TrimSpace(lng) == "" {
		return proximity.Query{}, fmt.Errorf("%w: latitude and longitude are required", apperr.ErrInvalidQuery)
	}
	parse := func(name, raw string) (float64, error) {
		if strings.TrimSpace(raw) == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a number", apperr.ErrInvalidQuery, name)
		}
		return v, nil
	}

	latV, err := parse("latitude", lat)
	if err != nil {
		return proximity.Query{}, err
	}
	lngV, err := parse("longitude", lng)
	if err != nil {
		return proximity.Query{}, err
	}
	radiusV, err := parse("radius", radius)
	if err != nil {
		return proximity.Query{}, err
	}
	var limitV int
	if s := strings.TrimSpace(limit); s != "" {
		if limitV, err = strconv.Atoi(s); err != nil {
			return proximity.Query{}, fmt.Errorf("%w: limit must be an integer", apperr.ErrInvalidQuery)
		}
	}
	// Explicit zero radius or limit is invalid; NewQuery would default them.
	if radiusV == 0 && strings.TrimSpace(radius) != "" {
		return proximity.Query{}, fmt.Errorf("%w: radius must be a positive number of meters", apperr.ErrInvalidQuery)
	}
	if limitV == 0 && strings.TrimSpace(limit) != "" {
		return proximity.Query{}, fmt.Errorf("%w: limit must be positive", apperr.ErrInvalidQuery)
	}
	return proximity.NewQuery(kind, latV, lngV, radiusV, limitV)
}

// GetPoint handles GET /api/collection-points/{id}.
func (h *CatalogHandlers) GetPoint(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPoint(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// CreatePoint handles POST /api/collection-points.
func (h *CatalogHandlers) CreatePoint(w http.ResponseWriter, r *http.Request) {
	var in catalog.PointInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.service.CreatePoint(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, p)
}

// UpdatePoint handles PUT /api/collection-points/{id}.
func (h *CatalogHandlers) UpdatePoint(w http.ResponseWriter, r *http.Request) {
	var in catalog.PointInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.service.UpdatePoint(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// DeactivatePoint handles DELETE /api/collection-points/{id}. Points are
// soft deleted so their events stay reportable.
func (h *CatalogHandlers) DeactivatePoint(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivatePoint(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSubscriber handles GET /api/subscribers/{id}.
func (h *CatalogHandlers) GetSubscriber(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSubscriber(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

// CreateSubscriber handles POST /api/subscribers.
func (h *CatalogHandlers) CreateSubscriber(w http.ResponseWriter, r *http.Request) {
	var in catalog.SubscriberInput
	if !decodeJSON(w, r, &in) {
		return
	}
	s, err := h.service.CreateSubscriber(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, s)
}

// UpdateSubscriber handles PUT /api/subscribers/{id}.
func (h *CatalogHandlers) UpdateSubscriber(w http.ResponseWriter, r *http.Request) {
	var in catalog.SubscriberInput
	if !decodeJSON(w, r, &in) {
		return
	}
	s, err := h.service.UpdateSubscriber(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s)
}

// DeactivateSubscriber handles DELETE /api/subscribers/{id}.
func (h *CatalogHandlers) DeactivateSubscriber(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivateSubscriber(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetEvent handles GET /api/collection-events/{id}.
func (h *CatalogHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.service.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// CreateEvent handles POST /api/collection-events.
func (h *CatalogHandlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var in catalog.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := h.service.CreateEvent(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

// UpdateEvent handles PUT /api/collection-events/{id}.
func (h *CatalogHandlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var in catalog.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}
	e, err := h.service.UpdateEvent(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// DeleteEvent handles DELETE /api/collection-events/{id}. Events are hard deleted.
func (h *CatalogHandlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BusinessTypes handles GET /api/subscribers/types.
func (h *CatalogHandlers) BusinessTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.BusinessTypes(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(types))
}

// ServiceCategories handles GET /api/subscribers/categories.
func (h *CatalogHandlers) ServiceCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ServiceCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(categories))
}

// WasteTypes handles GET /api/waste-types.
func (h *CatalogHandlers) WasteTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.WasteTypes(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(types))
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
