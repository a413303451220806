// Package sqlitestorage runs the GORM geo index on SQLite. With no path the
// database lives in memory and is dumped to disk periodically via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coinhunt/roomengine/internal/config"
	"github.com/coinhunt/roomengine/internal/database"
	gormstorage "github.com/coinhunt/roomengine/internal/storage/gorm"
	"gorm.io/gorm"
)

// Backend wraps the GORM backend with SQLite connection ownership and dumps.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      config.SQLiteConfig
	log      *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New opens the database described by cfg.
func New(cfg config.SQLiteConfig, log *slog.Logger, now func() time.Time) (*Backend, error) {
	db, err := database.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite geo index: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Backend{
		Backend:  gormstorage.New(gormstorage.Dependencies{DB: db, Logger: log, Now: now}),
		db:       db,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}, nil
}

// Init migrates the schema and starts the dump loop when configured.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}
	return nil
}

// Close stops the dump loop, writes a final dump and closes the database.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()
	if b.cfg.DumpPath != "" {
		b.dump()
	}
	return database.Close(b.db)
}

func (b *Backend) dump() {
	took, err := database.DumpSQLite(b.db, b.cfg.DumpPath)
	if err != nil {
		b.log.Error("Error dumping geo index to disk", "path", b.cfg.DumpPath, "error", err)
		return
	}
	b.log.Debug("Dumped geo index to disk", "path", b.cfg.DumpPath, "took", took)
}

func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.dump()
		}
	}
}
