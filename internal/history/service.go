package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service errors.
var (
	ErrMissingUser = errors.New("history requires a user")
)

// DefaultMaxEntries is how many entries are kept per user.
const DefaultMaxEntries = 20

// ServiceConfig holds configuration for the history service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// MaxEntries is the per-user cap (default: 20). Older entries are trimmed on Record.
	MaxEntries int

	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

// Service records and lists route history.
type Service struct {
	repo       Repository
	logger     zerolog.Logger
	maxEntries int
	now        func() time.Time
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) *Service {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:       cfg.Repository,
		logger:     cfg.Logger,
		maxEntries: maxEntries,
		now:        now,
	}
}

// Record stores an entry for its user and trims the user's history to the cap.
// ID and CreatedAt are assigned here.
func (s *Service) Record(ctx context.Context, entry Entry) (*Entry, error) {
	if entry.UserID == "" {
		return nil, ErrMissingUser
	}

	entry.ID = "hst_" + uuid.New().String()
	entry.CreatedAt = s.now().UTC()

	if err := s.repo.Add(ctx, &entry); err != nil {
		return nil, fmt.Errorf("adding history entry: %w", err)
	}

	if err := s.repo.Trim(ctx, entry.UserID, s.maxEntries); err != nil {
		// Entry is stored; the next Record trims again.
		s.logger.Warn().Err(err).Str("user_id", entry.UserID).Msg("failed to trim route history")
	}

	return &entry, nil
}

// List returns a user's history, newest first. limit is clamped to the cap.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}
	return s.repo.List(ctx, userID, limit)
}

// Delete removes one entry from a user's history.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return ErrMissingUser
	}
	return s.repo.Delete(ctx, userID, id)
}

// Clear removes a user's whole history.
func (s *Service) Clear(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, ErrMissingUser
	}
	n, err := s.repo.Clear(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("user_id", userID).Int64("removed", n).Msg("route history cleared")
	return n, nil
}

// MaxEntries returns the per-user cap.
func (s *Service) MaxEntries() int {
	return s.maxEntries
}
