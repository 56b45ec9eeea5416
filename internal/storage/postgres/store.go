package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sitemapaudit/internal/models"
	"sitemapaudit/internal/storage"
)

// PostgresStore implements storage.RunStore for PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// New creates a connection pool and runs migrations.
func New(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		homepage    TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_runs_homepage_created_at ON runs (homepage, created_at DESC);

	CREATE TABLE IF NOT EXISTS run_responses (
		run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position     INTEGER NOT NULL,
		url          TEXT NOT NULL,
		status_code  INTEGER NOT NULL,
		PRIMARY KEY (run_id, position)
	);
	`
	_, err := s.db.Exec(ctx, schema)
	return err
}

// SaveRun implements storage.RunStore. Responses are written with COPY.
func (s *PostgresStore) SaveRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO runs (id, homepage, created_at) VALUES ($1, $2, $3)`,
		run.ID, run.Homepage, run.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	rows := make([][]any, 0, run.Responses.Len())
	run.Responses.Each(func(url string, status int) {
		rows = append(rows, []any{run.ID, len(rows), url, status})
	})
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"run_responses"},
		[]string{"run_id", "position", "url", "status_code"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("failed to copy run responses: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LatestRun implements storage.RunStore.
func (s *PostgresStore) LatestRun(ctx context.Context, homepage string, since time.Time) (*models.Run, bool, error) {
	query := `SELECT id FROM runs WHERE homepage = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT 1`
	var id string
	err := s.db.QueryRow(ctx, query, homepage, since).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find latest run: %w", err)
	}

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return run, true, nil
}

// GetRun implements storage.RunStore.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	err := s.db.QueryRow(ctx, `SELECT id, homepage, created_at FROM runs WHERE id = $1`, id).
		Scan(&run.ID, &run.Homepage, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run by id: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT url, status_code FROM run_responses WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list run responses: %w", err)
	}
	defer rows.Close()

	run.Responses = models.NewResponses()
	for rows.Next() {
		var url string
		var status int
		if err := rows.Scan(&url, &status); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		run.Responses.Set(url, status)
	}
	return &run, rows.Err()
}
