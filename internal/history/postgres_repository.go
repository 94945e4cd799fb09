package history

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Add stores a new entry.
func (r *PostgresRepository) Add(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO route_history (
			id, user_id,
			origin_text, origin_lat, origin_lon,
			destination_text, destination_lat, destination_lon,
			mode, safety_score, grade, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.UserID,
		e.Origin.Text,
		e.Origin.Lat,
		e.Origin.Lon,
		e.Destination.Text,
		e.Destination.Lat,
		e.Destination.Lon,
		e.Mode,
		e.SafetyScore,
		e.Grade,
		e.CreatedAt,
	)
	return err
}

// List returns a user's entries, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string, limit int) ([]*Entry, error) {
	query := `
		SELECT
			id, user_id,
			origin_text, origin_lat, origin_lon,
			destination_text, destination_lat, destination_lon,
			mode, safety_score, grade, created_at
		FROM route_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Entry, error) {
		var e Entry
		err := row.Scan(
			&e.ID,
			&e.UserID,
			&e.Origin.Text,
			&e.Origin.Lat,
			&e.Origin.Lon,
			&e.Destination.Text,
			&e.Destination.Lat,
			&e.Destination.Lon,
			&e.Mode,
			&e.SafetyScore,
			&e.Grade,
			&e.CreatedAt,
		)
		return &e, err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Delete removes one of a user's entries.
func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM route_history WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Clear removes all of a user's entries.
func (r *PostgresRepository) Clear(ctx context.Context, userID string) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM route_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// Trim keeps only the newest keep entries for a user.
func (r *PostgresRepository) Trim(ctx context.Context, userID string, keep int) error {
	query := `
		DELETE FROM route_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM route_history
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		)
	`
	_, err := r.pool.Exec(ctx, query, userID, keep)
	return err
}

var _ Repository = (*PostgresRepository)(nil)
