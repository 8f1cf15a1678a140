package handlers

import (
	"html/template"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/IdoKimhi/route-analyzer/internal/config"
	"github.com/IdoKimhi/route-analyzer/internal/provider"
	"github.com/IdoKimhi/route-analyzer/internal/store"
	"github.com/IdoKimhi/route-analyzer/web"
)

// NewRouter assembles the full HTTP surface of the web process
func NewRouter(cfg *config.Config, db *store.DB, geometry provider.Client, providerNames []string) (http.Handler, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/*.html")
	if err != nil {
		return nil, err
	}

	flash := newFlashCodec(cfg.SecretKey)
	pages := NewPageHandler(db, db, flash, tmpl, providerNames, cfg.WazeRegion)
	api := NewAPIHandler(db, db, geometry, db)
	export := NewExportHandler(db)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", api.Health)

	r.Get("/", pages.Home)
	r.Get("/setup", pages.SetupPage)
	r.Post("/setup", pages.SetupSubmit)
	r.Post("/routes/{id}/toggle", pages.Toggle)
	r.Post("/routes/{id}/delete", pages.Delete)

	r.Get("/api/routes", api.Routes)
	r.Get("/api/routes/{id}/path", api.RoutePath)
	r.Get("/api/samples", api.Samples)

	r.Get("/download", export.Download)

	// Static assets: embedded by default, overridable for local hacking
	if cfg.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	} else {
		staticFS, err := fs.Sub(web.Static, "static")
		if err != nil {
			return nil, err
		}
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	}

	return r, nil
}
