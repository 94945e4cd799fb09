package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
)

type caller struct {
	addr   string
	userID string
}

// burst sends one request per caller through mw and returns the status codes.
func burst(mw func(http.Handler) http.Handler, callers ...caller) []int {
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, len(callers))
	for _, c := range callers {
		req := httptest.NewRequest(http.MethodPost, "/v1/routes:score", http.NoBody)
		req.RemoteAddr = c.addr
		if c.userID != "" {
			req = req.WithContext(middleware.WithUserID(req.Context(), c.userID))
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	return codes
}

func repeat(c caller, n int) []caller {
	out := make([]caller, n)
	for i := range out {
		out[i] = c
	}
	return out
}

func TestRateLimitByIP(t *testing.T) {
	limit := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	ok, limited := http.StatusNoContent, http.StatusTooManyRequests

	tests := []struct {
		name    string
		callers []caller
		want    []int
	}{
		{
			name:    "within budget",
			callers: repeat(caller{addr: "198.51.100.7:4100"}, 2),
			want:    []int{ok, ok},
		},
		{
			name:    "over budget",
			callers: repeat(caller{addr: "198.51.100.7:4100"}, 4),
			want:    []int{ok, ok, limited, limited},
		},
		{
			name: "ports share an address budget",
			callers: []caller{
				{addr: "198.51.100.7:4100"}, {addr: "198.51.100.7:4200"}, {addr: "198.51.100.7:4300"},
			},
			want: []int{ok, ok, limited},
		},
		{
			name: "addresses are independent",
			callers: []caller{
				{addr: "198.51.100.7:4100"}, {addr: "198.51.100.7:4100"}, {addr: "198.51.100.7:4100"},
				{addr: "203.0.113.9:4100"},
			},
			want: []int{ok, ok, limited, ok},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, burst(middleware.RateLimitByIP(limit), tt.callers...))
		})
	}
}

func TestRateLimitByUser(t *testing.T) {
	limit := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	ok, limited := http.StatusNoContent, http.StatusTooManyRequests

	t.Run("user budget follows the user across addresses", func(t *testing.T) {
		codes := burst(middleware.RateLimitByUser(limit),
			caller{addr: "10.1.0.1:1", userID: "usr_walker"},
			caller{addr: "10.1.0.2:1", userID: "usr_walker"},
			caller{addr: "10.1.0.3:1", userID: "usr_walker"},
			caller{addr: "10.1.0.3:1", userID: "usr_cyclist"},
		)
		assert.Equal(t, []int{ok, ok, limited, ok}, codes)
	})

	t.Run("anonymous callers are keyed by address", func(t *testing.T) {
		codes := burst(middleware.RateLimitByUser(limit),
			caller{addr: "10.2.0.1:1"},
			caller{addr: "10.2.0.1:1"},
			caller{addr: "10.2.0.1:1"},
			caller{addr: "10.2.0.2:1"},
		)
		assert.Equal(t, []int{ok, ok, limited, ok}, codes)
	})

	t.Run("signing in does not spend the address budget", func(t *testing.T) {
		codes := burst(middleware.RateLimitByUser(limit),
			caller{addr: "10.3.0.1:1"},
			caller{addr: "10.3.0.1:1"},
			caller{addr: "10.3.0.1:1", userID: "usr_walker"},
		)
		assert.Equal(t, []int{ok, ok, ok}, codes)
	})
}

func TestRateLimit_ProblemResponse(t *testing.T) {
	h := middleware.RequestID(middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestLimit: 1,
		WindowLength: 30 * time.Second,
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	var w *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/routes:plan", http.NoBody)
		req.RemoteAddr = "192.0.2.44:5000"
		req.Header.Set(middleware.RequestIDHeader, "req-limit-check")
		w = httptest.NewRecorder()
		h.ServeHTTP(w, req)
	}

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeTooManyRequests, problem.Type)
	assert.Equal(t, "/v1/routes:plan", problem.Instance)
	assert.Equal(t, "req-limit-check", problem.TraceID)
}

func TestRateLimits_WithDefaults(t *testing.T) {
	d := middleware.DefaultRateLimits()
	assert.Equal(t, 10, d.Auth.RequestLimit)
	assert.Equal(t, 30, d.Plan.RequestLimit)
	assert.Equal(t, 100, d.Standard.RequestLimit)

	custom := middleware.RateLimits{
		Plan:     middleware.RateLimitConfig{RequestLimit: 5, WindowLength: 10 * time.Second},
		Standard: middleware.RateLimitConfig{RequestLimit: 500},
	}.WithDefaults()

	assert.Equal(t, d.Auth, custom.Auth)
	assert.Equal(t, middleware.RateLimitConfig{RequestLimit: 5, WindowLength: 10 * time.Second}, custom.Plan)
	assert.Equal(t, d.Standard, custom.Standard, "a tier without a window falls back entirely")
}
