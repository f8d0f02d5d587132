package api

import (
	"net/http"
	"route-optimizer-service/internal/api/handlers"
	"route-optimizer-service/internal/platform/metrics"
	"route-optimizer-service/internal/ports"
	"route-optimizer-service/internal/services"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	// Heartbeat is the idle interval between SSE comment frames.
	Heartbeat time.Duration
	// StreamRemote lets /routes/stream serve sessions owned by another
	// instance, for brokers that fan out across processes.
	StreamRemote bool
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(
	sessions *services.SessionManager,
	updates ports.UpdateSubscriber,
	logger *zap.Logger,
	cfg RouterConfig,
) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}

	h := &handlers.SessionHandler{
		Sessions:     sessions,
		Updates:      updates,
		Heartbeat:    cfg.Heartbeat,
		StreamRemote: cfg.StreamRemote,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, loggingMiddleware(logger), middleware.Recoverer)

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Post("/sessions", h.Create)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Delete("/", h.Close)

		r.Get("/locations", h.ListLocations)
		r.Post("/locations", h.AddLocation)
		r.Post("/locations/reorder", h.Reorder)
		r.Delete("/locations/{stopID}", h.RemoveLocation)

		r.Get("/routes", h.Routes)
		r.Get("/routes/stream", h.Stream)
		r.Get("/matrix", h.Matrix)
	})

	return r
}
