package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sitemapaudit/internal/models"
	"sitemapaudit/internal/storage"
)

// SQLiteStore implements storage.RunStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database file and runs migrations.
func New(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	homepage    TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_homepage_created_at ON runs (homepage, created_at DESC);

CREATE TABLE IF NOT EXISTS run_responses (
	run_id       TEXT NOT NULL,
	position     INTEGER NOT NULL,
	url          TEXT NOT NULL,
	status_code  INTEGER NOT NULL,
	PRIMARY KEY (run_id, position),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun stores a run and its responses in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO runs (id, homepage, created_at) VALUES (?, ?, ?)`,
		run.ID, run.Homepage, run.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_responses (run_id, position, url, status_code) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare response insert: %w", err)
	}
	defer stmt.Close()

	position := 0
	var insertErr error
	run.Responses.Each(func(url string, status int) {
		if insertErr != nil {
			return
		}
		if _, err := stmt.ExecContext(ctx, run.ID, position, url, status); err != nil {
			insertErr = fmt.Errorf("failed to insert response for %s: %w", url, err)
		}
		position++
	})
	if insertErr != nil {
		return insertErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LatestRun returns the newest run for homepage created at or after since.
func (s *SQLiteStore) LatestRun(ctx context.Context, homepage string, since time.Time) (*models.Run, bool, error) {
	query := `SELECT id FROM runs WHERE homepage = ? AND created_at >= ? ORDER BY created_at DESC LIMIT 1`
	var id string
	err := s.db.QueryRowContext(ctx, query, homepage, since.UnixNano()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
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

// GetRun retrieves a run and its responses in recorded order.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `SELECT id, homepage, created_at FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Homepage, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run by id: %w", err)
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()

	rows, err := s.db.QueryContext(ctx, `SELECT url, status_code FROM run_responses WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list run responses: %w", err)
	}
	defer rows.Close()

	run.Responses = models.NewResponses()
	for rows.Next() {
		var url string
		var status int
		if err := rows.Scan(&url, &status); err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		run.Responses.Set(url, status)
	}
	return &run, rows.Err()
}
