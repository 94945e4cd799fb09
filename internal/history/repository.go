package history

import "context"

// Repository defines the interface for history persistence.
type Repository interface {
	// Add stores a new entry.
	Add(ctx context.Context, entry *Entry) error

	// List returns a user's entries, newest first, at most limit of them.
	List(ctx context.Context, userID string, limit int) ([]*Entry, error)

	// Delete removes one of a user's entries.
	// Returns ErrEntryNotFound if it doesn't exist or belongs to another user.
	Delete(ctx context.Context, userID, id string) error

	// Clear removes all of a user's entries and returns how many were removed.
	Clear(ctx context.Context, userID string) (int64, error)

	// Trim keeps only the newest keep entries for a user.
	Trim(ctx context.Context, userID string, keep int) error
}
