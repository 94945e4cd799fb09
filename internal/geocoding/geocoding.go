// Package geocoding resolves free-text addresses to coordinates.
package geocoding

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sentinel errors for geocoding operations.
var (
	ErrEmptyQuery          = errors.New("empty geocoding query")
	ErrNoMatch             = errors.New("no geocoding match")
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
)

// Place is the best match for a query.
type Place struct {
	Lat   float64
	Lon   float64
	Label string

	// Confidence is the provider's match confidence in [0,1], zero if unknown.
	Confidence float64
}

// Provider resolves a query to its single best match.
type Provider interface {
	// Geocode returns ErrNoMatch when nothing matches.
	Geocode(ctx context.Context, text string) (*Place, error)
	Name() string
}

// ServiceConfig holds configuration for the geocoding service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// CacheTTL is how long a resolved place is reused (default: 24 hours).
	CacheTTL time.Duration

	// MaxEntries bounds the cache size (default: 10000). When full, expired
	// entries are purged and, failing that, the cache is reset.
	MaxEntries int
}

// Service caches geocoding results by normalized query text.
type Service struct {
	provider   Provider
	logger     zerolog.Logger
	cacheTTL   time.Duration
	maxEntries int

	mu    sync.RWMutex
	cache map[string]cachedPlace
}

type cachedPlace struct {
	place     Place
	expiresAt time.Time
}

// NewService creates a new geocoding service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	return &Service{
		provider:   cfg.Provider,
		logger:     cfg.Logger,
		cacheTTL:   cacheTTL,
		maxEntries: maxEntries,
		cache:      make(map[string]cachedPlace),
	}
}

// Normalize lowercases the query and collapses whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Geocode resolves text to its best match. Misses are not cached.
func (s *Service) Geocode(ctx context.Context, text string) (*Place, error) {
	key := Normalize(text)
	if key == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.RLock()
	if c, ok := s.cache[key]; ok && time.Now().Before(c.expiresAt) {
		s.mu.RUnlock()
		place := c.place
		return &place, nil
	}
	s.mu.RUnlock()

	place, err := s.provider.Geocode(ctx, strings.TrimSpace(text))
	if err != nil {
		if !errors.Is(err, ErrNoMatch) {
			s.logger.Error().Err(err).Str("provider", s.provider.Name()).Msg("geocoding failed")
		}
		return nil, err
	}

	s.mu.Lock()
	if len(s.cache) >= s.maxEntries {
		s.evictLocked()
	}
	s.cache[key] = cachedPlace{place: *place, expiresAt: time.Now().Add(s.cacheTTL)}
	s.mu.Unlock()

	return place, nil
}

func (s *Service) evictLocked() {
	now := time.Now()
	for k, c := range s.cache {
		if now.After(c.expiresAt) {
			delete(s.cache, k)
		}
	}
	if len(s.cache) >= s.maxEntries {
		s.logger.Debug().Int("entries", len(s.cache)).Msg("geocoding cache full, resetting")
		s.cache = make(map[string]cachedPlace)
	}
}

// CacheSize returns the number of cached entries.
func (s *Service) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
