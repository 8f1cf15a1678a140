package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/IdoKimhi/route-analyzer/internal/provider"
	"github.com/IdoKimhi/route-analyzer/internal/store"
)

const defaultWindowHours = 168

// APIHandler serves the JSON API
type APIHandler struct {
	routes   RouteStore
	samples  SampleStore
	geometry provider.Client
	db       *store.DB
}

// NewAPIHandler creates the JSON API handler. geometry is the provider used
// for the route path display.
func NewAPIHandler(routes RouteStore, samples SampleStore, geometry provider.Client, db *store.DB) *APIHandler {
	return &APIHandler{routes: routes, samples: samples, geometry: geometry, db: db}
}

// Health handles GET /health with a database connectivity check
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// routeJSON is the wire shape of GET /api/routes
type routeJSON struct {
	ID      int64     `json:"id"`
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
	Start   []float64 `json:"start"`
	End     []float64 `json:"end"`
	Region  string    `json:"region"`
}

// Routes handles GET /api/routes
func (h *APIHandler) Routes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.routes.ListRoutes(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load routes"})
		return
	}

	out := make([]routeJSON, 0, len(routes))
	for _, rt := range routes {
		out = append(out, routeJSON{
			ID:      rt.ID,
			Name:    rt.Name,
			Enabled: rt.Enabled,
			Start:   []float64{rt.StartLat, rt.StartLng},
			End:     []float64{rt.EndLat, rt.EndLng},
			Region:  rt.Region,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// RoutePath handles GET /api/routes/{id}/path. Geometry failures are
// non-fatal: the response is always 200 for a known route, with a warning
// and the straight-line fallback when the provider call fails.
func (h *APIHandler) RoutePath(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Route not found"})
		return
	}

	rt, err := h.routes.GetRoute(r.Context(), id)
	if errors.Is(err, store.ErrRouteNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Route not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load route"})
		return
	}

	start := provider.Point{Lat: rt.StartLat, Lng: rt.StartLng}
	end := provider.Point{Lat: rt.EndLat, Lng: rt.EndLng}

	points, err := h.geometry.FetchRouteGeometry(r.Context(), start, end, rt.Region)
	if err != nil {
		log.Printf("server: route geometry failed route_id=%d: %v", id, err)
		writeJSON(w, http.StatusOK, map[string]any{
			"points":  pointPairs(provider.FallbackLine(start, end)),
			"warning": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"points": pointPairs(points)})
}

// sampleJSON is the wire shape of GET /api/samples
type sampleJSON struct {
	TS          string   `json:"ts"`
	RouteID     int64    `json:"route_id"`
	Provider    string   `json:"provider"`
	Status      string   `json:"status"`
	DurationMin *int     `json:"duration_min"`
	DistanceKm  *float64 `json:"distance_km"`
	Error       *string  `json:"error"`
}

// Samples handles GET /api/samples?hours=168&provider=&route_id=
func (h *APIHandler) Samples(w http.ResponseWriter, r *http.Request) {
	since, providerName, routeID, _ := parseSampleFilters(r)

	samples, err := h.samples.QuerySamples(r.Context(), since, providerName, routeID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to load samples"})
		return
	}

	out := make([]sampleJSON, 0, len(samples))
	for _, s := range samples {
		item := sampleJSON{
			TS:       s.TS.Format(time.RFC3339),
			RouteID:  s.RouteID,
			Provider: s.Provider,
			Status:   s.Status,
			Error:    s.Error,
		}
		if s.DurationSec != nil {
			m := roundMinutes(*s.DurationSec)
			item.DurationMin = &m
		}
		if s.DistanceM != nil {
			km := roundKm(*s.DistanceM)
			item.DistanceKm = &km
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

// parseSampleFilters reads the shared hours/provider/route_id query
// parameters. Unparseable values fall back to defaults rather than erroring.
func parseSampleFilters(r *http.Request) (since time.Time, providerName string, routeID int64, hours int) {
	hours = defaultWindowHours
	if v := r.URL.Query().Get("hours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			hours = n
		}
	}
	since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	providerName = r.URL.Query().Get("provider")

	if v := r.URL.Query().Get("route_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			routeID = id
		}
	}
	return since, providerName, routeID, hours
}

func roundMinutes(durationSec int) int {
	return int(math.Round(float64(durationSec) / 60))
}

func roundKm(distanceM int) float64 {
	return math.Round(float64(distanceM)/1000*100) / 100
}

func pointPairs(points []provider.Point) [][]float64 {
	out := make([][]float64, 0, len(points))
	for _, p := range points {
		out = append(out, []float64{p.Lat, p.Lng})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
