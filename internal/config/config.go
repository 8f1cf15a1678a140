package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the collector and web server
type Config struct {
	// Secret key for signing flash cookies
	SecretKey string

	// Database connection string: postgres://... or a SQLite path
	DatabaseURL string

	// Polling cadence in minutes (wall-clock aligned slots)
	PollMinutes int

	// Providers
	WazeRegion string
	OSRMURL    string

	// Web server
	Port      string
	StaticDir string
}

// Load reads configuration from environment variables with sensible defaults.
// DATABASE_URL is required; startup fails without it.
func Load() (*Config, error) {
	cfg := &Config{
		SecretKey:   getEnv("SECRET_KEY", "dev-only-change-me"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		PollMinutes: getEnvInt("POLL_MINUTES", 30),
		WazeRegion:  getEnv("WAZE_REGION", "IL"),
		OSRMURL:     getEnv("OSRM_URL", "https://router.project-osrm.org"),
		Port:        getEnv("PORT", "8080"),
		StaticDir:   getEnv("STATIC_DIR", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required env var: DATABASE_URL")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
