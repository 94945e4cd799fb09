package routing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// CacheTTL is how long a provider answer is served without refetching. Default: 10m
	CacheTTL time.Duration

	// CacheGridSize snaps endpoints to a grid of this many degrees before
	// keying the cache, so nearby taps share routes. Default: 0.001 (about 110m)
	CacheGridSize float64

	// StaleIfErrorTTL is how long an expired answer may stand in for a failing
	// provider. Default: 1h
	StaleIfErrorTTL time.Duration

	// CleanupInterval bounds how often entries past StaleIfErrorTTL are swept. Default: 5m
	CleanupInterval time.Duration
}

// Service fronts a Provider with a grid-keyed cache. Concurrent misses for the
// same key share one provider call.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	ttl             time.Duration
	grid            float64
	staleIfErrorTTL time.Duration
	sweepEvery      time.Duration
	now             func() time.Time

	inflight singleflight.Group

	mu        sync.RWMutex
	cache     map[string]cachedDirections
	lastSweep time.Time
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		ttl:             cfg.CacheTTL,
		grid:            cfg.CacheGridSize,
		staleIfErrorTTL: cfg.StaleIfErrorTTL,
		sweepEvery:      cfg.CleanupInterval,
		now:             time.Now,
		cache:           make(map[string]cachedDirections),
	}
	if s.ttl <= 0 {
		s.ttl = 10 * time.Minute
	}
	if s.grid <= 0 {
		s.grid = 0.001
	}
	if s.staleIfErrorTTL <= 0 {
		s.staleIfErrorTTL = time.Hour
	}
	if s.sweepEvery <= 0 {
		s.sweepEvery = 5 * time.Minute
	}
	return s
}

// GetDirections returns route alternatives between two points, each with
// decoded coordinates. Walking is assumed when no profile is set. A provider
// answer with no usable routes yields ErrNoRouteFound.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if req.Profile == "" {
		req.Profile = ProfileWalk
	}

	key := s.cacheKey(req)
	if resp, ok := s.lookup(key, s.ttl); ok {
		s.logger.Debug().Str("cache_key", key).Msg("directions cache hit")
		return resp, nil
	}

	v, err, shared := s.inflight.Do(key, func() (interface{}, error) {
		return s.fetch(ctx, req, key)
	})
	if shared {
		s.logger.Debug().Str("cache_key", key).Msg("joined in-flight directions request")
	}
	if err != nil {
		return nil, err
	}
	return v.(*DirectionsResponse), nil
}

func (s *Service) validate(req DirectionsRequest) error {
	switch {
	case !req.Origin.Valid():
		return &Error{Provider: s.provider.Name(), Code: "INVALID_ORIGIN", Message: "invalid origin coordinates", Err: ErrInvalidCoordinates}
	case !req.Destination.Valid():
		return &Error{Provider: s.provider.Name(), Code: "INVALID_DESTINATION", Message: "invalid destination coordinates", Err: ErrInvalidCoordinates}
	}
	return nil
}

// lookup returns the entry for key if it was fetched within maxAge.
func (s *Service) lookup(key string, maxAge time.Duration) (*DirectionsResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[key]
	if !ok || s.now().Sub(c.fetchedAt) >= maxAge {
		return nil, false
	}
	return c.response, true
}

func (s *Service) fetch(ctx context.Context, req DirectionsRequest, key string) (*DirectionsResponse, error) {
	// A caller that lost the race to the previous flight finds its result here.
	if resp, ok := s.lookup(key, s.ttl); ok {
		return resp, nil
	}

	resp, err := s.provider.GetDirections(ctx, req)
	if err == nil {
		err = s.prepare(resp)
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("provider", s.provider.Name()).
			Str("profile", string(req.Profile)).
			Msg("directions request failed")

		if stale, ok := s.lookup(key, s.staleIfErrorTTL); ok {
			s.logger.Warn().
				Str("cache_key", key).
				Time("fetched_at", stale.FetchedAt).
				Msg("serving stale directions")
			return stale, nil
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = cachedDirections{response: resp, fetchedAt: s.now()}
	s.sweepLocked()
	s.mu.Unlock()

	s.logger.Debug().
		Str("cache_key", key).
		Int("route_count", len(resp.Routes)).
		Msg("cached directions")
	return resp, nil
}

// prepare decodes any geometry the provider left encoded and drops routes
// that end up with fewer than two points.
func (s *Service) prepare(resp *DirectionsResponse) error {
	if resp == nil {
		return &Error{Provider: s.provider.Name(), Code: "NO_ROUTE", Message: "empty response", Err: ErrNoRouteFound}
	}

	kept := resp.Routes[:0]
	for i, r := range resp.Routes {
		if len(r.Coordinates) == 0 && r.GeometryPolyline != "" {
			if err := r.DecodeGeometry(); err != nil {
				s.logger.Warn().Err(err).Int("route", i).Msg("dropping route with malformed geometry")
				continue
			}
		}
		if len(r.Coordinates) >= 2 {
			kept = append(kept, r)
		}
	}
	resp.Routes = kept

	if len(kept) == 0 {
		return &Error{Provider: s.provider.Name(), Code: "NO_ROUTE", Message: "provider returned no usable routes", Err: ErrNoRouteFound}
	}
	return nil
}

// cacheKey is {profile}:{alternatives}:{originLat},{originLon}:{destLat},{destLon}
// with each coordinate floored to the grid.
func (s *Service) cacheKey(req DirectionsRequest) string {
	snap := func(v float64) float64 { return math.Floor(v/s.grid) * s.grid }
	return fmt.Sprintf("%s:%d:%.4f,%.4f:%.4f,%.4f",
		req.Profile, req.MaxAlternatives,
		snap(req.Origin.Lat), snap(req.Origin.Lon),
		snap(req.Destination.Lat), snap(req.Destination.Lon),
	)
}

// sweepLocked drops entries too old to serve even as stale data.
func (s *Service) sweepLocked() {
	now := s.now()
	if now.Sub(s.lastSweep) < s.sweepEvery {
		return
	}
	s.lastSweep = now

	removed := 0
	for key, c := range s.cache {
		if now.Sub(c.fetchedAt) >= s.staleIfErrorTTL {
			delete(s.cache, key)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("swept routing cache")
	}
}

// CacheStats counts entries that are fresh, and expired entries still
// servable when the provider fails.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Provider     string
}

// CacheStats returns a snapshot of the cache.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := CacheStats{TotalEntries: len(s.cache), Provider: s.provider.Name()}
	now := s.now()
	for _, c := range s.cache {
		switch age := now.Sub(c.fetchedAt); {
		case age < s.ttl:
			stats.FreshEntries++
		case age < s.staleIfErrorTTL:
			stats.StaleEntries++
		}
	}
	return stats
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
