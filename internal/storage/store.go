package storage

import (
	"context"
	"errors"
	"time"

	"sitemapaudit/internal/models"
)

var (
	// ErrNotFound is returned when a requested run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnknownDriver is returned for a cache driver name that is not supported.
	ErrUnknownDriver = errors.New("unknown cache driver")
)

// Supported cache drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// RunStore persists completed collection runs so a later audit of the same
// homepage can reuse them instead of probing again.
type RunStore interface {
	// SaveRun stores run. An empty ID is filled in.
	SaveRun(ctx context.Context, run *models.Run) error
	// LatestRun returns the newest run for homepage created at or after since.
	// found is false when there is none; that is not an error.
	LatestRun(ctx context.Context, homepage string, since time.Time) (run *models.Run, found bool, err error)
	// GetRun returns a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id string) (*models.Run, error)
	Close() error
}
