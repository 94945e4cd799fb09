package database

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONNECT_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 10, cfg.MaxConns)
	assert.Equal(t, 2, cfg.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
}

func TestConfigFromEnv_ReportsEveryBadValue(t *testing.T) {
	t.Setenv("DB_PORT", "five")
	t.Setenv("DB_CONN_MAX_LIFETIME", "forever")
	t.Setenv("DB_MAX_CONNS", "4")
	t.Setenv("DB_MIN_CONNS", "8")

	cfg, err := ConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
	assert.Contains(t, err.Error(), "DB_CONN_MAX_LIFETIME")
	assert.Contains(t, err.Error(), "DB_MIN_CONNS")

	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 4, cfg.MinConns)
}

func TestConfigFromEnv_ZeroMaxConns(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "0")
	t.Setenv("DB_MIN_CONNS", "")

	_, err := ConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MAX_CONNS")
}

func TestConnectionString_EscapesCredentials(t *testing.T) {
	cfg := Config{
		Host:     "db.internal",
		Port:     6432,
		User:     "route@svc",
		Password: "p@ss:w/rd?#",
		Database: "saferoute",
		SSLMode:  "require",
	}

	dsn := cfg.ConnectionString()
	require.True(t, strings.HasPrefix(dsn, "postgres://"))

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "route@svc", u.User.Username())
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss:w/rd?#", password)
	assert.Equal(t, "db.internal:6432", u.Host)
	assert.Equal(t, "/saferoute", u.Path)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestSchema_CoversStores(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS incidents")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS route_history")
	assert.Contains(t, schema, "route_history_user_created_idx")
}
