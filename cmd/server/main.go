package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"route-optimizer-service/internal/adapters/broker"
	"route-optimizer-service/internal/adapters/cache"
	"route-optimizer-service/internal/adapters/distance"
	"route-optimizer-service/internal/api"
	"route-optimizer-service/internal/config"
	"route-optimizer-service/internal/platform/db"
	"route-optimizer-service/internal/platform/metrics"
	"route-optimizer-service/internal/platform/obs"
	"route-optimizer-service/internal/ports"
	"route-optimizer-service/internal/services"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// main is the application composition root.
// It wires concrete adapters (Postgres caches, ORS, broker) behind ports and starts the HTTP server.
func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	logger := obs.SetupLogger("route-optimizer", cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}

	metrics.RegisterDefault()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Caches are optional; without a database every lookup goes to ORS.
	var (
		distanceCache ports.DistanceCache
		geocodeCache  ports.GeocodeCache
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		defer conn.Close()

		distanceCache = cache.NewSQLDistanceCache(conn, cfg.ORSProfile, cfg.DistanceCacheTTL)
		geocodeCache = cache.NewSQLGeocodeCache(conn)
	} else {
		logger.Warn("DATABASE_URL not set, provider caches disabled")
	}

	if cfg.ORSAPIKey == "" {
		logger.Fatal("ORS_API_KEY is required")
	}
	provider, err := distance.NewORSProvider(distance.ORSConfig{
		APIKey:     cfg.ORSAPIKey,
		BaseURL:    cfg.ORSBaseURL,
		Profile:    cfg.ORSProfile,
		RatePerMin: cfg.ORSRatePerMin,
	}, distanceCache, geocodeCache, logger)
	if err != nil {
		logger.Fatal("build ORS provider", zap.Error(err))
	}

	var (
		updates      ports.UpdateBroker
		streamRemote bool
	)
	if cfg.RedisURL != "" {
		rb, err := broker.NewRedisBrokerFromURL(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer func() {
			if err := rb.Close(); err != nil {
				logger.Warn("close redis broker", zap.Error(err))
			}
		}()
		updates, streamRemote = rb, true
	} else {
		updates = broker.NewMemoryBroker()
	}

	sessions := services.NewSessionManager(provider, provider, updates, logger, services.CoordinatorConfig{
		Debounce:   cfg.RunDebounce,
		RunTimeout: cfg.RunTimeout,
	})
	defer sessions.CloseAll()

	router := api.NewRouter(sessions, updates, logger, api.RouterConfig{StreamRemote: streamRemote})

	// No write timeout: route streams stay open for the life of the client.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown", zap.Error(err))
	}
}
