package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/IdoKimhi/route-analyzer/internal/collector"
	"github.com/IdoKimhi/route-analyzer/internal/config"
	"github.com/IdoKimhi/route-analyzer/internal/provider"
	"github.com/IdoKimhi/route-analyzer/internal/store"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("collector: %v", err)
	}
	log.Printf("collector: starting, poll_minutes=%d region=%s", cfg.PollMinutes, cfg.WazeRegion)

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("collector: failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("collector: failed to ensure schema: %v", err)
	}

	providers := []provider.Client{
		provider.NewWaze(),
		provider.NewOSRM(cfg.OSRMURL),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector.New(db, providers, cfg.PollMinutes).Run(ctx)
	log.Println("collector: stopped")
}
