package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/IdoKimhi/route-analyzer/internal/config"
	"github.com/IdoKimhi/route-analyzer/internal/handlers"
	"github.com/IdoKimhi/route-analyzer/internal/provider"
	"github.com/IdoKimhi/route-analyzer/internal/store"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("server: failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("server: failed to ensure schema: %v", err)
	}

	// Waze draws the route path on the dashboard map
	router, err := handlers.NewRouter(cfg, db, provider.NewWaze(),
		[]string{provider.NameWaze, provider.NameOSRM})
	if err != nil {
		log.Fatalf("server: failed to build router: %v", err)
	}

	log.Printf("server: listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("server: %v", err)
	}
}
