package history

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Used when no database is configured and in tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]*Entry // by user, oldest first
}

// NewInMemoryRepository creates a new in-memory history repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		entries: make(map[string][]*Entry),
	}
}

// Add stores a copy of entry.
func (r *InMemoryRepository) Add(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *entry
	list := append(r.entries[entry.UserID], &cpy)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	r.entries[entry.UserID] = list
	return nil
}

// List returns copies of a user's entries, newest first.
func (r *InMemoryRepository) List(_ context.Context, userID string, limit int) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.entries[userID]
	out := make([]*Entry, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cpy := *list[i]
		out = append(out, &cpy)
	}
	return out, nil
}

// Delete removes one of a user's entries.
func (r *InMemoryRepository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[userID]
	for i, e := range list {
		if e.ID == id {
			r.entries[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ErrEntryNotFound
}

// Clear removes all of a user's entries.
func (r *InMemoryRepository) Clear(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries[userID])
	delete(r.entries, userID)
	return int64(n), nil
}

// Trim keeps only the newest keep entries for a user.
func (r *InMemoryRepository) Trim(_ context.Context, userID string, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[userID]
	if keep < 0 {
		keep = 0
	}
	if len(list) > keep {
		r.entries[userID] = append([]*Entry(nil), list[len(list)-keep:]...)
	}
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
