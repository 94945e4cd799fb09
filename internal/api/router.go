// Package api provides the HTTP API for SafeRoute.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/handler"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/auth"
)

// AuthService validates access tokens and issues development tokens.
type AuthService interface {
	middleware.TokenValidator
	handler.DevTokenIssuer
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool
	RateLimits  middleware.RateLimits

	AuthService AuthService
	Planner     handler.RoutePlanner
	Incidents   handler.IncidentIndex
	History     handler.HistoryService
	Providers   handler.ProviderHealth
	Caches      []handler.CacheReporter
}

// healthCheckPaths are hit by load balancers over plain HTTP every few seconds.
var healthCheckPaths = []string{"/v1/ops/health", "/v1/ops/ready"}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "saferoute-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger, healthCheckPaths...))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS, healthCheckPaths...))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Incidents, cfg.Providers).
		WithCaches(cfg.Caches...)
	routeHandler := handler.NewRouteHandler(cfg.Planner, cfg.Logger)
	incidentHandler := handler.NewIncidentHandler(cfg.Incidents, cfg.Logger)
	historyHandler := handler.NewHistoryHandler(cfg.History, cfg.Logger)
	authHandler := handler.NewAuthHandler(cfg.AuthService)

	authMiddleware := middleware.Auth(cfg.AuthService)
	optionalAuth := middleware.OptionalAuth(cfg.AuthService)

	limits := cfg.RateLimits.WithDefaults()
	authRateLimit := middleware.RateLimitByIP(limits.Auth)
	planRateLimit := middleware.RateLimitByIP(limits.Plan)
	standardRateLimit := middleware.RateLimitByIP(limits.Standard)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Dev tokens answer 404 unless AUTH_DEV_MODE is on.
		r.With(authRateLimit).Post("/auth/dev", authHandler.DevToken)

		// Planning geocodes and calls the routing provider on every request.
		r.With(planRateLimit, optionalAuth).Post("/routes:plan", routeHandler.PlanRoute)
		r.With(standardRateLimit).Post("/routes:score", routeHandler.ScoreRoutes)
		r.With(planRateLimit).Post("/areas:rate", routeHandler.RateArea)

		r.With(standardRateLimit).Get("/incidents/stats", incidentHandler.Stats)
		r.With(authMiddleware, middleware.RateLimitByUser(limits.Auth)).
			Post("/incidents:refresh", incidentHandler.Refresh)

		r.Route("/me/history", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(limits.Standard))
			r.Get("/", historyHandler.ListHistory)
			r.Delete("/", historyHandler.ClearHistory)
			r.Delete("/{entryId}", historyHandler.DeleteHistoryEntry)
		})
	})

	return r
}

var _ AuthService = (*auth.Service)(nil)
