package middleware_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/auth"
)

// tokenTable resolves fixed tokens; anything else is invalid.
type tokenTable map[string]error

func (tt tokenTable) ValidateAccessToken(token string) (string, error) {
	err, ok := tt[token]
	switch {
	case !ok:
		return "", auth.ErrInvalidAccessToken
	case err != nil:
		return "", err
	}
	return "usr_" + token, nil
}

var tokens = tokenTable{
	"walker":  nil,
	"expired": auth.ErrAccessTokenExpired,
	"broken":  fmt.Errorf("keyring: %w", assert.AnError),
}

// authCall runs one request through mw and reports the status, the user seen
// by the next handler, and the problem detail on rejection.
func authCall(t *testing.T, mw func(http.Handler) http.Handler, header string) (int, string, string) {
	t.Helper()
	var seen string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me/history", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		return w.Code, seen, ""
	}
	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeUnauthorized, problem.Type)
	assert.Equal(t, "/v1/me/history", problem.Instance)
	return w.Code, seen, problem.Detail
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
		wantDetail string
	}{
		{"valid", "Bearer walker", http.StatusNoContent, "usr_walker", ""},
		{"lowercase scheme", "bearer walker", http.StatusNoContent, "usr_walker", ""},
		{"uppercase scheme", "BEARER walker", http.StatusNoContent, "usr_walker", ""},
		{"padded token", "Bearer   walker  ", http.StatusNoContent, "usr_walker", ""},
		{"no header", "", http.StatusUnauthorized, "", "missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "", "invalid authorization header format"},
		{"bare token", "walker", http.StatusUnauthorized, "", "invalid authorization header format"},
		{"scheme only", "Bearer", http.StatusUnauthorized, "", "invalid authorization header format"},
		{"empty token", "Bearer    ", http.StatusUnauthorized, "", "missing bearer token"},
		{"unknown token", "Bearer forged", http.StatusUnauthorized, "", "invalid access token"},
		{"expired token", "Bearer expired", http.StatusUnauthorized, "", "access token has expired"},
		{"validator failure", "Bearer broken", http.StatusUnauthorized, "", "authentication failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, user, detail := authCall(t, middleware.Auth(tokens), tt.header)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantDetail, detail)
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"anonymous", "", http.StatusNoContent, ""},
		{"valid token", "Bearer walker", http.StatusNoContent, "usr_walker"},
		{"bad token still rejected", "Bearer forged", http.StatusUnauthorized, ""},
		{"wrong scheme still rejected", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, user, _ := authCall(t, middleware.OptionalAuth(tokens), tt.header)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantUser, user)
		})
	}
}

func TestAuth_WithJWTService(t *testing.T) {
	cfg := auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.saferoute.app",
		Audience:   "saferoute-api",
	}
	svc := auth.NewService(auth.ServiceConfig{JWTService: auth.NewJWTService(cfg)})

	fresh, _, err := auth.NewJWTService(cfg).GenerateAccessToken("usr_8c1e", time.Hour)
	require.NoError(t, err)

	cfg.Now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := auth.NewJWTService(cfg).GenerateAccessToken("usr_8c1e", time.Minute)
	require.NoError(t, err)

	status, user, _ := authCall(t, middleware.Auth(svc), "Bearer "+fresh)
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "usr_8c1e", user)

	status, _, detail := authCall(t, middleware.Auth(svc), "Bearer "+stale)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "access token has expired", detail)
}

func TestGetUserID_Anonymous(t *testing.T) {
	assert.Empty(t, middleware.GetUserID(httptest.NewRequest(http.MethodGet, "/", http.NoBody).Context()))
}
