package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the ingested incident feed and serves it back as snapshots.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL incident store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Name returns the provider identifier.
func (s *PostgresStore) Name() string {
	return "postgres"
}

var incidentColumns = []string{"lat", "lon", "category", "description", "occurred_at", "ingested_at"}

// FetchSnapshot loads every stored incident as one snapshot.
// The snapshot's FetchedAt is the time of the last ingest, not the time of the read.
func (s *PostgresStore) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	query := `
		SELECT lat, lon, category, description, occurred_at, ingested_at
		FROM incidents
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var (
		records    []Record
		ingestedAt time.Time
	)
	for rows.Next() {
		var (
			r          Record
			occurredAt *time.Time
			rowIngest  time.Time
		)
		if err := rows.Scan(&r.Lat, &r.Lon, &r.Category, &r.Description, &occurredAt, &rowIngest); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		if occurredAt != nil {
			r.OccurredAt = *occurredAt
		}
		if rowIngest.After(ingestedAt) {
			ingestedAt = rowIngest
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	if len(records) == 0 {
		return nil, ErrNoSnapshot
	}

	snapshot := NewSnapshot(s.Name(), records)
	snapshot.FetchedAt = ingestedAt
	return snapshot, nil
}

// ReplaceAll atomically replaces the stored feed with the snapshot's records.
// It returns the number of rows written.
func (s *PostgresStore) ReplaceAll(ctx context.Context, snapshot *Snapshot) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `DELETE FROM incidents`); err != nil {
		return 0, fmt.Errorf("clear incidents: %w", err)
	}

	ingestedAt := snapshot.FetchedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"incidents"},
		incidentColumns,
		pgx.CopyFromSlice(len(snapshot.Records), func(i int) ([]any, error) {
			r := &snapshot.Records[i]
			var occurredAt *time.Time
			if !r.OccurredAt.IsZero() {
				occurredAt = &r.OccurredAt
			}
			return []any{r.Lat, r.Lon, r.Category, r.Description, occurredAt, ingestedAt}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy incidents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Count returns the number of stored incidents.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM incidents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return n, nil
}

// Ensure PostgresStore implements Provider interface.
var _ Provider = (*PostgresStore)(nil)
