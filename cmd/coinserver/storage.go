package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/coinhunt/roomengine/internal/config"
	"github.com/coinhunt/roomengine/internal/database"
	"github.com/coinhunt/roomengine/internal/storage"
	"github.com/coinhunt/roomengine/internal/storage/memory"
	pgstorage "github.com/coinhunt/roomengine/internal/storage/postgres"
	redisstorage "github.com/coinhunt/roomengine/internal/storage/redis"
	sqlitestorage "github.com/coinhunt/roomengine/internal/storage/sqlite"
)

// createStorageBackend builds the geo index selected by storage.type.
// The caller runs Init.
func createStorageBackend(storageCfg config.StorageConfig, logsDir string, started time.Time, logger *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "redis":
		logger.Info("Redis geo index selected", "addr", storageCfg.Redis.Addr)
		return redisstorage.New(storageCfg.Redis), nil

	case "postgres":
		backend, err := pgstorage.New(database.PostgresDSN(), logger, time.Now)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres backend: %w", err)
		}
		logger.Info("Postgres geo index selected")
		return backend, nil

	case "sqlite":
		sqliteCfg := storageCfg.SQLite
		if sqliteCfg.Path == "" && sqliteCfg.DumpPath == "" {
			sqliteCfg.DumpPath = filepath.Join(logsDir, fmt.Sprintf("%s_%s.db", ServiceName, started.Format("20060102_150405")))
		}
		backend, err := sqlitestorage.New(sqliteCfg, logger, time.Now)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite geo index selected", "path", sqliteCfg.Path, "dumpPath", sqliteCfg.DumpPath)
		return backend, nil

	case "", "memory":
		logger.Info("Memory geo index selected")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}
