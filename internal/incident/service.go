package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Provider defines the interface for incident data sources.
type Provider interface {
	// FetchSnapshot fetches a complete snapshot of incident records.
	FetchSnapshot(ctx context.Context) (*Snapshot, error)

	// Name returns the provider identifier.
	Name() string
}

// ServiceConfig holds configuration for the incident index.
type ServiceConfig struct {
	// Provider is the incident data source.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long a snapshot stays fresh (default: 1 hour).
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 6 hours).
	StaleIfErrorTTL time.Duration
}

// Service holds the current incident snapshot and refreshes it from the provider.
// Readers always see a complete snapshot; a refresh swaps the pointer under lock.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration

	refreshMu sync.Mutex

	mu          sync.RWMutex
	snapshot    *Snapshot
	cacheExpiry time.Time
	lastError   error
	lastAttempt time.Time
}

// NewService creates a new incident index.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 6 * time.Hour
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
	}
}

// Current returns the current snapshot, refreshing it when the cache has expired.
func (s *Service) Current(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	if s.snapshot != nil && time.Now().Before(s.cacheExpiry) {
		snapshot := s.snapshot
		s.mu.RUnlock()
		return snapshot, nil
	}
	s.mu.RUnlock()

	return s.refresh(ctx, false)
}

// Refresh forces a fetch from the provider regardless of cache freshness.
// On failure it returns ErrProviderUnavailable and keeps the previous snapshot.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	return s.refresh(ctx, true)
}

// Status represents the current state of the index.
type Status struct {
	HasData     bool
	Records     int
	FetchedAt   time.Time
	ExpiresAt   time.Time
	IsExpired   bool
	IsStale     bool
	Provider    string
	LastError   string
	LastAttempt time.Time
}

// Status returns information about the held snapshot.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{LastAttempt: s.lastAttempt}
	if s.lastError != nil {
		st.LastError = s.lastError.Error()
	}
	if s.snapshot == nil {
		return st
	}

	now := time.Now()
	st.HasData = true
	st.Records = len(s.snapshot.Records)
	st.FetchedAt = s.snapshot.FetchedAt
	st.ExpiresAt = s.cacheExpiry
	st.IsExpired = now.After(s.cacheExpiry)
	st.IsStale = now.After(s.snapshot.FetchedAt.Add(s.staleIfErrorTTL))
	st.Provider = s.snapshot.Provider
	return st
}

func (s *Service) refresh(ctx context.Context, force bool) (*Snapshot, error) {
	// One fetch at a time. Readers only wait on mu, which is never held across the fetch.
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if !force {
		s.mu.RLock()
		snapshot, fresh := s.snapshot, s.snapshot != nil && time.Now().Before(s.cacheExpiry)
		s.mu.RUnlock()
		if fresh {
			return snapshot, nil
		}
	}

	s.logger.Debug().Str("provider", s.provider.Name()).Msg("refreshing incident snapshot")

	attempt := time.Now()
	snapshot, err := s.provider.FetchSnapshot(ctx)
	if err == nil && snapshot == nil {
		err = ErrNoSnapshot
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAttempt = attempt

	if err != nil {
		s.lastError = err
		s.logger.Error().Err(err).Msg("failed to fetch incident snapshot")

		// A forced refresh reports the failure; the held snapshot stays in place.
		if force {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		if s.snapshot != nil && time.Now().Before(s.snapshot.FetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("fetched_at", s.snapshot.FetchedAt).
				Msg("serving stale incident data due to provider error")
			return s.snapshot, nil
		}

		return nil, ErrProviderUnavailable
	}

	s.snapshot = snapshot
	s.cacheExpiry = time.Now().Add(s.cacheTTL)
	s.lastError = nil

	s.logger.Info().
		Int("records", len(snapshot.Records)).
		Str("provider", snapshot.Provider).
		Time("expires_at", s.cacheExpiry).
		Msg("incident snapshot refreshed")

	return snapshot, nil
}

// KeepFresh loads a snapshot immediately and then refreshes it every interval
// until ctx is done, so request paths rarely wait on the provider.
// Failures are logged by refresh and retried on the next tick.
func (s *Service) KeepFresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.cacheTTL
	}

	_, _ = s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Refresh(ctx)
		}
	}
}
