// Package postgres runs the GORM geo index on PostgreSQL.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/coinhunt/roomengine/internal/database"
	gormstorage "github.com/coinhunt/roomengine/internal/storage/gorm"
	"gorm.io/gorm"
)

// Backend owns a postgres connection and delegates index operations to GORM.
type Backend struct {
	*gormstorage.Backend
	db *gorm.DB
}

// New connects with dsn; see database.PostgresDSN.
func New(dsn string, log *slog.Logger, now func() time.Time) (*Backend, error) {
	db, err := database.OpenPostgres(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres geo index: %w", err)
	}
	return NewWithDB(db, log, now), nil
}

// NewWithDB wraps an already open connection.
func NewWithDB(db *gorm.DB, log *slog.Logger, now func() time.Time) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{DB: db, Logger: log, Now: now}),
		db:      db,
	}
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	return database.Close(b.db)
}
