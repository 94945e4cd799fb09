// Package main provides the entrypoint for the SafeRoute API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api"
	"github.com/saferoute/saferoute/internal/api/handler"
	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/auth"
	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/geocoding"
	"github.com/saferoute/saferoute/internal/history"
	"github.com/saferoute/saferoute/internal/incident"
	"github.com/saferoute/saferoute/internal/incident/socrata"
	"github.com/saferoute/saferoute/internal/planner"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/routing/openrouteservice"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const devSigningKey = "local-dev-signing-key-change-in-production"

func main() {
	const serviceName = "saferoute-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SafeRoute API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseEnabled {
		pool, err = database.Connect(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to apply database schema")
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	} else {
		log.Warn().Msg("DB_HOST not set, route history is kept in memory")
	}

	registry := resilience.NewRegistry()

	if cfg.ORS.APIKey == "" {
		log.Warn().Msg("ORS_API_KEY not set, geocoding and routing requests will fail")
	}
	ors := openrouteservice.NewClient(openrouteservice.ClientConfig{
		APIKey:          cfg.ORS.APIKey,
		BaseURL:         cfg.ORS.BaseURL,
		BoundaryCountry: cfg.ORS.BoundaryCountry,
		Registry:        registry,
		Logger:          log,
	})
	routingService := routing.NewService(routing.ServiceConfig{
		Provider: ors,
		Logger:   log,
	})
	geocodingService := geocoding.NewService(geocoding.ServiceConfig{
		Provider: ors,
		Logger:   log,
	})

	incidentProvider, err := newIncidentProvider(cfg, pool, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure incident source")
	}
	incidentService := incident.NewService(incident.ServiceConfig{
		Provider:        incidentProvider,
		Logger:          log,
		CacheTTL:        cfg.Incidents.RefreshInterval,
		StaleIfErrorTTL: cfg.Incidents.StaleIfError,
	})
	go incidentService.KeepFresh(ctx, cfg.Incidents.RefreshInterval)
	log.Info().
		Str("source", cfg.Incidents.Source).
		Str("provider", incidentProvider.Name()).
		Dur("refresh_interval", cfg.Incidents.RefreshInterval).
		Msg("incident index initialized")

	var historyRepo history.Repository = history.NewInMemoryRepository()
	if pool != nil {
		historyRepo = history.NewPostgresRepository(pool)
	}
	historyService := history.NewService(history.ServiceConfig{
		Repository: historyRepo,
		Logger:     log,
	})

	routePlanner, err := planner.New(planner.Config{
		Geocoder:  geocodingService,
		Router:    routingService,
		Incidents: incidentService,
		History:   historyService,
		Scorer:    safety.NewScorer(cfg.Safety),
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize planner")
	}

	signingKey := cfg.JWT.SigningKey
	if signingKey == "" {
		signingKey = devSigningKey
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	authService := auth.NewService(auth.ServiceConfig{
		JWTService: auth.NewJWTService(auth.JWTConfig{
			SigningKey: signingKey,
			Issuer:     cfg.JWT.Issuer,
			Audience:   cfg.JWT.Audience,
		}),
		DevMode: cfg.JWT.DevMode,
	})
	if authService.DevModeEnabled() {
		log.Warn().Msg("AUTH_DEV_MODE enabled, POST /v1/auth/dev issues tokens to anyone")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		RequireTLS:  cfg.RequireTLS,
		RateLimits: middleware.RateLimits{
			Auth:     perMinute(cfg.RateLimits.AuthPerMinute),
			Plan:     perMinute(cfg.RateLimits.PlanPerMinute),
			Standard: perMinute(cfg.RateLimits.StandardPerMinute),
		},
		AuthService: authService,
		Planner:     routePlanner,
		Incidents:   incidentService,
		History:     historyService,
		Providers:   registry,
		Caches: []handler.CacheReporter{
			func() models.CacheStatus {
				st := routingService.CacheStats()
				return models.CacheStatus{Name: "routing", Entries: st.TotalEntries, StaleEntries: st.StaleEntries}
			},
			func() models.CacheStatus {
				return models.CacheStatus{Name: "geocoding", Entries: geocodingService.CacheSize()}
			},
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// newIncidentProvider returns the PostgreSQL store filled by the worker, or
// the live Socrata feed.
func newIncidentProvider(cfg config.Config, pool *pgxpool.Pool, registry *resilience.Registry) (incident.Provider, error) {
	if cfg.Incidents.Source == config.IncidentSourcePostgres {
		if pool == nil {
			return nil, errors.New("postgres incident source needs a database")
		}
		return incident.NewPostgresStore(pool), nil
	}

	dataset, ok := socrata.DatasetByName(cfg.Socrata.Dataset)
	if !ok {
		return nil, errors.New("unknown socrata dataset " + cfg.Socrata.Dataset)
	}
	return socrata.NewClient(socrata.ClientConfig{
		BaseURL:  cfg.Socrata.BaseURL,
		Dataset:  dataset,
		AppToken: cfg.Socrata.AppToken,
		Lookback: cfg.Socrata.Lookback,
		Registry: registry,
	}), nil
}

// perMinute converts a configured budget; zero leaves the tier at its default.
func perMinute(n int) middleware.RateLimitConfig {
	return middleware.RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}
