package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/saferoute/saferoute/internal/api/models"
)

// RateLimitConfig is a fixed-window request budget.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

func (c RateLimitConfig) enabled() bool {
	return c.RequestLimit > 0 && c.WindowLength > 0
}

// RateLimits holds the budget for each endpoint tier.
type RateLimits struct {
	// Auth covers token issuing and manual incident refreshes.
	Auth RateLimitConfig

	// Plan covers route planning, which geocodes twice and calls the routing
	// provider on every request.
	Plan RateLimitConfig

	// Standard covers scoring, stats and history.
	Standard RateLimitConfig
}

// DefaultRateLimits returns 10, 30 and 100 requests per minute for the
// auth, plan and standard tiers.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Auth:     RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute},
		Plan:     RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute},
		Standard: RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute},
	}
}

// WithDefaults replaces unset tiers with DefaultRateLimits.
func (l RateLimits) WithDefaults() RateLimits {
	d := DefaultRateLimits()
	if !l.Auth.enabled() {
		l.Auth = d.Auth
	}
	if !l.Plan.enabled() {
		l.Plan = d.Plan
	}
	if !l.Standard.enabled() {
		l.Standard = d.Standard
	}
	return l
}

// RateLimitByIP limits by client address. Run chi's RealIP first so proxied
// requests are keyed by the forwarded address.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limiter(cfg, httprate.KeyByRealIP)
}

// RateLimitByUser limits by authenticated user, falling back to the client
// address for anonymous requests.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limiter(cfg, keyByUserOrIP)
}

func limiter(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(rateLimitExceeded(cfg.WindowLength)),
	)
}

func keyByUserOrIP(r *http.Request) (string, error) {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID, nil
	}
	return httprate.KeyByRealIP(r)
}

// rateLimitExceeded answers with a 429 problem. Retry-After falls back to the
// whole window when the limiter has not already set it.
func rateLimitExceeded(window time.Duration) http.HandlerFunc {
	fallback := strconv.Itoa(int(math.Ceil(window.Seconds())))
	return func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", fallback)
		}
		models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.").
			WithInstance(r.URL.Path).
			Write(w)
	}
}
