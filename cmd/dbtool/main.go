package main

import (
	"context"
	"route-optimizer-service/internal/adapters/cache"
	"route-optimizer-service/internal/config"
	"route-optimizer-service/internal/platform/db"
	"route-optimizer-service/internal/platform/obs"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// dbtool creates the cache tables and loads known geocodes.
func main() {
	envErr := godotenv.Load()

	logger := obs.SetupLogger("route-optimizer-dbtool", config.Get("LOG_LEVEL", "info"))
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	databaseURL := config.Get("DATABASE_URL", "")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger.Info("initializing database schema")
	if err := cache.InitSchema(ctx, conn); err != nil {
		logger.Fatal("schema initialization failed", zap.Error(err))
	}

	seedPath := config.Get("GEOCODE_SEED_PATH", "data/seeds/geocodes.json")
	logger.Info("seeding geocode cache", zap.String("path", seedPath))
	n, err := cache.SeedGeocodeFromJSON(ctx, conn, seedPath)
	if err != nil {
		logger.Fatal("seeding failed", zap.Error(err))
	}
	logger.Info("seeding complete", zap.Int("rows", n))
}
