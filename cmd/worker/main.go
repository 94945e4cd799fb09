// Package main provides the entrypoint for the SafeRoute ingest worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/config"
	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/incident"
	"github.com/saferoute/saferoute/internal/incident/socrata"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/telemetry"
	"github.com/saferoute/saferoute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "saferoute-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting SafeRoute worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.DatabaseEnabled {
		log.Fatal().Msg("DB_HOST is required: the worker writes incidents to PostgreSQL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	pool, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to apply database schema")
	}

	dataset, ok := socrata.DatasetByName(cfg.Socrata.Dataset)
	if !ok {
		log.Fatal().Str("dataset", cfg.Socrata.Dataset).Msg("unknown socrata dataset")
	}

	registry := resilience.NewRegistry()
	feed := socrata.NewClient(socrata.ClientConfig{
		BaseURL:  cfg.Socrata.BaseURL,
		Dataset:  dataset,
		AppToken: cfg.Socrata.AppToken,
		Lookback: cfg.Socrata.Lookback,
		Registry: registry,
	})

	ingest := worker.NewIngestJob(worker.IngestJobConfig{
		Config:  worker.DefaultIngestConfig(),
		Sources: []incident.Provider{feed},
		Sink:    incident.NewPostgresStore(pool),
		Logger:  log,
	})
	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		Ingest:   ingest,
		DB:       pool,
		Registry: registry,
		Logger:   log,
	})

	// Without a trigger the worker runs once, cron style.
	if !cfg.PubSub.Enabled() && cfg.Incidents.IngestInterval <= 0 {
		log.Info().Msg("no pubsub subscription or INGEST_INTERVAL configured, running a single ingest")
		if _, err := ingest.Run(ctx, worker.RunOptions{}); err != nil {
			stop()
			os.Exit(1) //nolint:gocritic // deferred cleanup is best-effort
		}
		return
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      healthRouter(log, ingest, registry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if cfg.PubSub.Enabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub receive stopped")
				stop()
			}
		}()
	} else {
		log.Info().Dur("interval", cfg.Incidents.IngestInterval).Msg("running ingest on a ticker")
		go func() {
			_ = ingest.RunEvery(ctx, cfg.Incidents.IngestInterval)
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// healthRouter serves the worker's liveness endpoint for the container platform.
func healthRouter(log zerolog.Logger, ingest *worker.IngestJob, registry *resilience.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]any{
			"status":    "healthy",
			"version":   Version,
			"providers": registry.Overall(),
			"ingest":    ingest.MetricsSnapshot(),
		})
	})
	return r
}
