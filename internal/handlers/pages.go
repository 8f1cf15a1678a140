package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/IdoKimhi/route-analyzer/internal/store"
)

// RouteStore defines the route registry operations the pages need
type RouteStore interface {
	ListRoutes(ctx context.Context) ([]store.Route, error)
	GetRoute(ctx context.Context, id int64) (*store.Route, error)
	CreateRoute(ctx context.Context, r store.Route) (int64, error)
	ToggleRoute(ctx context.Context, id int64) error
	DeleteRoute(ctx context.Context, id int64) error
}

// SampleStore defines the sample log operations the read side needs
type SampleStore interface {
	QuerySamples(ctx context.Context, since time.Time, provider string, routeID int64) ([]store.Sample, error)
	LatestSample(ctx context.Context, routeID int64, provider string) (*store.Sample, error)
}

// PageHandler renders the dashboard and setup pages
type PageHandler struct {
	routes        RouteStore
	samples       SampleStore
	flash         *flashCodec
	tmpl          *template.Template
	validate      *validator.Validate
	providers     []string
	defaultRegion string
}

// NewPageHandler creates the HTML page handler
func NewPageHandler(routes RouteStore, samples SampleStore, flash *flashCodec, tmpl *template.Template, providers []string, defaultRegion string) *PageHandler {
	return &PageHandler{
		routes:        routes,
		samples:       samples,
		flash:         flash,
		tmpl:          tmpl,
		validate:      validator.New(),
		providers:     providers,
		defaultRegion: defaultRegion,
	}
}

// latestView is a display-ready rendering of the most recent sample
type latestView struct {
	Provider    string
	TS          string
	Status      string
	DurationMin int
	DistanceKm  float64
	Error       string
}

type routeView struct {
	Route  store.Route
	Start  string
	End    string
	Latest []latestView
}

// Home handles GET / — all routes with their latest sample per provider
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	routes, err := h.routes.ListRoutes(ctx)
	if err != nil {
		http.Error(w, "failed to load routes", http.StatusInternalServerError)
		return
	}

	views := make([]routeView, 0, len(routes))
	for _, rt := range routes {
		view := routeView{
			Route: rt,
			Start: fmt.Sprintf("%.5f, %.5f", rt.StartLat, rt.StartLng),
			End:   fmt.Sprintf("%.5f, %.5f", rt.EndLat, rt.EndLng),
		}
		for _, p := range h.providers {
			last, err := h.samples.LatestSample(ctx, rt.ID, p)
			if err != nil {
				log.Printf("server: latest sample lookup failed route_id=%d: %v", rt.ID, err)
				continue
			}
			if last == nil {
				continue
			}
			lv := latestView{
				Provider: p,
				TS:       last.TS.Format("2006-01-02 15:04"),
				Status:   last.Status,
			}
			if last.DurationSec != nil {
				lv.DurationMin = roundMinutes(*last.DurationSec)
			}
			if last.DistanceM != nil {
				lv.DistanceKm = roundKm(*last.DistanceM)
			}
			if last.Error != nil {
				lv.Error = *last.Error
			}
			view.Latest = append(view.Latest, lv)
		}
		views = append(views, view)
	}

	h.render(w, r, "home.html", map[string]any{
		"Routes": views,
	})
}

// SetupPage handles GET /setup
func (h *PageHandler) SetupPage(w http.ResponseWriter, r *http.Request) {
	routes, err := h.routes.ListRoutes(r.Context())
	if err != nil {
		http.Error(w, "failed to load routes", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "setup.html", map[string]any{
		"Routes":        routes,
		"DefaultRegion": h.defaultRegion,
	})
}

// setupForm carries the validated fields of the route creation form
type setupForm struct {
	StartLat float64 `validate:"min=-90,max=90"`
	StartLng float64 `validate:"min=-180,max=180"`
	EndLat   float64 `validate:"min=-90,max=90"`
	EndLng   float64 `validate:"min=-180,max=180"`
}

// SetupSubmit handles POST /setup. Bad input flashes a message and
// redirects back to the form; it never 500s.
func (h *PageHandler) SetupSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flashAndRedirect(w, r, "err", "Invalid form submission")
		return
	}

	form, err := h.parseSetupForm(r)
	if err != nil {
		h.flashAndRedirect(w, r, "err", err.Error())
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = fmt.Sprintf("%v,%v -> %v,%v", form.StartLat, form.StartLng, form.EndLat, form.EndLng)
	}
	if len(name) > 64 {
		name = name[:64]
	}

	region := strings.ToUpper(strings.TrimSpace(r.FormValue("region")))
	if region == "" {
		region = h.defaultRegion
	}

	route := store.Route{
		Name:     name,
		Enabled:  r.FormValue("enabled") == "on",
		StartLat: form.StartLat,
		StartLng: form.StartLng,
		EndLat:   form.EndLat,
		EndLng:   form.EndLng,
		Region:   region,
	}
	if _, err := h.routes.CreateRoute(r.Context(), route); err != nil {
		log.Printf("server: failed to create route: %v", err)
		h.flashAndRedirect(w, r, "err", "Failed to save route")
		return
	}

	h.flashAndRedirect(w, r, "ok", "Route added.")
}

func (h *PageHandler) parseSetupForm(r *http.Request) (*setupForm, error) {
	form := &setupForm{}
	fields := []struct {
		name string
		dst  *float64
	}{
		{"start_lat", &form.StartLat},
		{"start_lng", &form.StartLng},
		{"end_lat", &form.EndLat},
		{"end_lng", &form.EndLng},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue(f.name)), 64)
		if err != nil {
			return nil, fmt.Errorf("Invalid %s", f.name)
		}
		*f.dst = v
	}

	if err := h.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "StartLat", "EndLat":
				return nil, fmt.Errorf("Latitude out of range")
			default:
				return nil, fmt.Errorf("Longitude out of range")
			}
		}
		return nil, fmt.Errorf("Invalid coordinates")
	}
	return form, nil
}

// Toggle handles POST /routes/{id}/toggle
func (h *PageHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.mutateRoute(w, r, h.routes.ToggleRoute, "")
}

// Delete handles POST /routes/{id}/delete
func (h *PageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutateRoute(w, r, h.routes.DeleteRoute, "Route deleted.")
}

func (h *PageHandler) mutateRoute(w http.ResponseWriter, r *http.Request, op func(context.Context, int64) error, okMsg string) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.flashAndRedirect(w, r, "err", "Route not found")
		return
	}

	switch err := op(r.Context(), id); {
	case errors.Is(err, store.ErrRouteNotFound):
		h.flashAndRedirect(w, r, "err", "Route not found")
	case err != nil:
		log.Printf("server: route mutation failed id=%d: %v", id, err)
		h.flashAndRedirect(w, r, "err", "Operation failed")
	case okMsg != "":
		h.flashAndRedirect(w, r, "ok", okMsg)
	default:
		http.Redirect(w, r, "/setup", http.StatusSeeOther)
	}
}

func (h *PageHandler) flashAndRedirect(w http.ResponseWriter, r *http.Request, kind, msg string) {
	h.flash.Set(w, kind, msg)
	http.Redirect(w, r, "/setup", http.StatusSeeOther)
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) {
	data["Flash"] = h.flash.Pop(w, r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("server: template %s: %v", name, err)
	}
}
