// Package database manages the PostgreSQL pool shared by the incident store
// and route history, and the schema they expect.
package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var schema string

// Config holds database connection configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration

	// ConnectTimeout bounds how long Connect keeps retrying the first ping.
	ConnectTimeout time.Duration
}

// ConfigFromEnv reads DB_* variables. Every malformed value is reported in
// the returned error; the Config still carries defaults for those fields.
func ConfigFromEnv() (Config, error) {
	var errs []error
	atoi := func(key string, def int) int {
		raw := os.Getenv(key)
		if raw == "" {
			return def
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			errs = append(errs, fmt.Errorf("%s=%q: must be a non-negative integer", key, raw))
			return def
		}
		return v
	}
	duration := func(key string, def time.Duration) time.Duration {
		raw := os.Getenv(key)
		if raw == "" {
			return def
		}
		v, err := time.ParseDuration(raw)
		if err != nil || v < 0 {
			errs = append(errs, fmt.Errorf("%s=%q: must be a non-negative duration", key, raw))
			return def
		}
		return v
	}

	cfg := Config{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            atoi("DB_PORT", 5432),
		User:            getEnvOrDefault("DB_USER", "saferoute"),
		Password:        getEnvOrDefault("DB_PASSWORD", "localdev"),
		Database:        getEnvOrDefault("DB_NAME", "saferoute"),
		SSLMode:         getEnvOrDefault("DB_SSL_MODE", "disable"),
		MaxConns:        atoi("DB_MAX_CONNS", 10),
		MinConns:        atoi("DB_MIN_CONNS", 2),
		ConnMaxLifetime: duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnectTimeout:  duration("DB_CONNECT_TIMEOUT", 30*time.Second),
	}
	if cfg.MaxConns == 0 {
		errs = append(errs, errors.New("DB_MAX_CONNS: must be at least 1"))
		cfg.MaxConns = 10
	}
	if cfg.MinConns > cfg.MaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS=%d: exceeds DB_MAX_CONNS=%d", cfg.MinConns, cfg.MaxConns))
		cfg.MinConns = cfg.MaxConns
	}
	return cfg, errors.Join(errs...)
}

// ConnectionString returns a postgres:// URL with user info escaped.
func (c Config) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Connect opens a pool and pings it, retrying with exponential backoff for up
// to cfg.ConnectTimeout so the services survive a database that starts late.
func Connect(ctx context.Context, cfg Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns) //nolint:gosec // validated by ConfigFromEnv
	poolConfig.MinConns = int32(cfg.MinConns) //nolint:gosec // validated by ConfigFromEnv
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = cfg.ConnectTimeout

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return pool.Ping(pingCtx)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).
			Str("host", cfg.Host).
			Dur("retry_in", wait).
			Msg("database not reachable yet")
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(bo, ctx), notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the incidents and route_history tables if missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
