// Package config reads service configuration from the environment.
//
// An optional .env file in the working directory is loaded first; variables
// already set in the environment take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/saferoute/saferoute/internal/database"
	"github.com/saferoute/saferoute/internal/safety"
)

// Incident sources.
const (
	IncidentSourceFeed     = "feed"
	IncidentSourcePostgres = "postgres"
)

// Config is the full service configuration shared by cmd/api and cmd/worker.
type Config struct {
	Port string
	Env  string

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	RateLimits RateLimitConfig

	ORS       ORSConfig
	Socrata   SocrataConfig
	Incidents IncidentConfig
	JWT       JWTConfig
	Telemetry TelemetryConfig
	Database  database.Config

	// DatabaseEnabled is true when DB_HOST is set. Without it the API keeps
	// route history in memory and cannot read incidents from PostgreSQL.
	DatabaseEnabled bool

	PubSub PubSubConfig
	Safety safety.Config
}

// ORSConfig configures the OpenRouteService client.
type ORSConfig struct {
	APIKey          string
	BaseURL         string
	BoundaryCountry string
}

// SocrataConfig configures the incident feed.
type SocrataConfig struct {
	BaseURL  string
	AppToken string

	// Dataset is "sf" (default) or "nypd".
	Dataset  string
	Lookback time.Duration
}

// IncidentConfig configures the incident index.
type IncidentConfig struct {
	// Source is IncidentSourceFeed or IncidentSourcePostgres.
	Source          string
	RefreshInterval time.Duration
	StaleIfError    time.Duration

	// IngestInterval drives the worker's ticker when Pub/Sub is not configured.
	// Zero disables the ticker.
	IngestInterval time.Duration
}

// JWTConfig configures bearer token validation.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	DevMode    bool
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	Insecure     bool
	SampleRatio  float64
}

// RateLimitConfig holds per-minute request budgets for each endpoint tier.
// Zero keeps the API default.
type RateLimitConfig struct {
	AuthPerMinute     int
	PlanPerMinute     int
	StandardPerMinute int
}

// PubSubConfig configures the worker's trigger subscription.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// Enabled reports whether both project and subscription are set.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Subscription != ""
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (Config, error) {
	p := &parser{}

	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		p.errs = append(p.errs, err)
	}

	cfg := Config{
		Port: getEnvOrDefault("APP_PORT", "8080"),
		Env:  getEnvOrDefault("APP_ENV", "development"),

		RequireTLS: p.getBool("REQUIRE_TLS", false),
		RateLimits: RateLimitConfig{
			AuthPerMinute:     p.getInt("RATE_LIMIT_AUTH_PER_MIN", 0),
			PlanPerMinute:     p.getInt("RATE_LIMIT_PLAN_PER_MIN", 0),
			StandardPerMinute: p.getInt("RATE_LIMIT_STANDARD_PER_MIN", 0),
		},

		ORS: ORSConfig{
			APIKey:          os.Getenv("ORS_API_KEY"),
			BaseURL:         os.Getenv("ORS_BASE_URL"),
			BoundaryCountry: os.Getenv("ORS_BOUNDARY_COUNTRY"),
		},
		Socrata: SocrataConfig{
			BaseURL:  os.Getenv("SOCRATA_BASE_URL"),
			AppToken: os.Getenv("SOCRATA_APP_TOKEN"),
			Dataset:  strings.ToLower(getEnvOrDefault("SOCRATA_DATASET", "sf")),
			Lookback: time.Duration(p.getInt("INCIDENT_LOOKBACK_DAYS", 180)) * 24 * time.Hour,
		},
		Incidents: IncidentConfig{
			Source:          strings.ToLower(getEnvOrDefault("INCIDENT_SOURCE", IncidentSourceFeed)),
			RefreshInterval: p.getDuration("INCIDENT_REFRESH_INTERVAL", time.Hour),
			StaleIfError:    p.getDuration("INCIDENT_STALE_IF_ERROR", 6*time.Hour),
			IngestInterval:  p.getDuration("INGEST_INTERVAL", 0),
		},
		JWT: JWTConfig{
			SigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:     getEnvOrDefault("JWT_ISSUER", "https://api.saferoute.app"),
			Audience:   getEnvOrDefault("JWT_AUDIENCE", "saferoute-api"),
			DevMode:    p.getBool("AUTH_DEV_MODE", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      p.getBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:     p.getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:  p.getFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
		Database:        dbCfg,
		DatabaseEnabled: os.Getenv("DB_HOST") != "",
		PubSub: PubSubConfig{
			ProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
			Subscription: os.Getenv("PUBSUB_SUBSCRIPTION"),
		},
		Safety: p.scoringConfig(),
	}

	switch cfg.Incidents.Source {
	case IncidentSourceFeed, IncidentSourcePostgres:
	default:
		p.fail("INCIDENT_SOURCE", cfg.Incidents.Source, errors.New("must be feed or postgres"))
	}
	if cfg.Incidents.Source == IncidentSourcePostgres && !cfg.DatabaseEnabled {
		p.fail("INCIDENT_SOURCE", cfg.Incidents.Source, errors.New("requires DB_HOST"))
	}
	if cfg.Telemetry.SampleRatio > 1 {
		p.fail("OTEL_TRACES_SAMPLER_ARG", strconv.FormatFloat(cfg.Telemetry.SampleRatio, 'f', -1, 64),
			errors.New("must not exceed 1"))
	}
	switch cfg.Socrata.Dataset {
	case "sf", "nypd":
	default:
		p.fail("SOCRATA_DATASET", cfg.Socrata.Dataset, errors.New("must be sf or nypd"))
	}
	if cfg.IsProduction() {
		if cfg.JWT.SigningKey == "" {
			p.fail("JWT_SIGNING_KEY", "", errors.New("required in production"))
		}
		if cfg.JWT.DevMode {
			p.fail("AUTH_DEV_MODE", "true", errors.New("not allowed in production"))
		}
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// scoringConfig applies SAFETY_* overrides on top of the default scoring constants.
func (p *parser) scoringConfig() safety.Config {
	c := safety.DefaultConfig()
	c.Radius = p.getFloat("SAFETY_RADIUS", c.Radius)
	c.NeutralScore = p.getFloat("SAFETY_NEUTRAL_SCORE", c.NeutralScore)
	c.ScoreStride = p.getInt("SAFETY_SCORE_STRIDE", c.ScoreStride)
	c.SegmentStride = p.getInt("SAFETY_SEGMENT_STRIDE", c.SegmentStride)
	c.AvgDivisor = p.getFloat("SAFETY_AVG_DIVISOR", c.AvgDivisor)
	c.MaxDivisor = p.getFloat("SAFETY_MAX_DIVISOR", c.MaxDivisor)
	c.NormCap = p.getFloat("SAFETY_NORM_CAP", c.NormCap)
	c.BaseScore = p.getFloat("SAFETY_BASE_SCORE", c.BaseScore)
	c.AvgWeight = p.getFloat("SAFETY_AVG_WEIGHT", c.AvgWeight)
	c.MaxWeight = p.getFloat("SAFETY_MAX_WEIGHT", c.MaxWeight)
	c.MediumThreshold = p.getFloat("SAFETY_MEDIUM_THRESHOLD", c.MediumThreshold)
	c.HighThreshold = p.getFloat("SAFETY_HIGH_THRESHOLD", c.HighThreshold)
	// safety.NewScorer reads zero as unset, so a zero here would be silently replaced.
	if c.ScoreStride == 0 {
		p.fail("SAFETY_SCORE_STRIDE", "0", errors.New("must be positive"))
	}
	if c.SegmentStride == 0 {
		p.fail("SAFETY_SEGMENT_STRIDE", "0", errors.New("must be positive"))
	}
	if c.HighThreshold <= c.MediumThreshold {
		p.fail("SAFETY_HIGH_THRESHOLD", strconv.FormatFloat(c.HighThreshold, 'f', -1, 64),
			errors.New("must exceed SAFETY_MEDIUM_THRESHOLD"))
	}
	return c
}

// parser collects every malformed variable so they are reported together.
type parser struct {
	errs []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (p *parser) getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		if err == nil {
			err = errors.New("must not be negative")
		}
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		if err == nil {
			err = errors.New("must be positive")
		}
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		if err == nil {
			err = errors.New("must not be negative")
		}
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) getBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
