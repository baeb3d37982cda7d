package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/straye-as/blob-processor/internal/auth"
	"github.com/straye-as/blob-processor/internal/config"
	"github.com/straye-as/blob-processor/internal/http/handler"
	"github.com/straye-as/blob-processor/internal/http/middleware"
	"go.uber.org/zap"
)

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	eventHandler   *handler.EventHandler
	healthHandler  *handler.HealthHandler
	metricsHandler http.Handler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	eventHandler *handler.EventHandler,
	healthHandler *handler.HealthHandler,
	metricsHandler http.Handler,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		eventHandler:   eventHandler,
		healthHandler:  healthHandler,
		metricsHandler: metricsHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(rt.rateLimiter.LimitByIP)

	// Probes
	r.Get("/health", rt.healthHandler.Live)
	r.Get("/health/ready", rt.healthHandler.Ready)

	// Prometheus scrape endpoint
	r.Method(http.MethodGet, "/metrics", rt.metricsHandler)

	// Event Grid webhook
	r.Route("/api/events", func(r chi.Router) {
		// Handshake requests carry no AAD token
		r.Options("/", rt.eventHandler.Handshake)

		r.Group(func(r chi.Router) {
			r.Use(rt.authMiddleware.Authenticate)
			r.Post("/", rt.eventHandler.Receive)
		})
	})

	return r
}
