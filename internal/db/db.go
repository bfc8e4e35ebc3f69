// Package db provides SQLite connection management for the local durable stores.
package db

import (
	"database/sql"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"

	"github.com/saludcampo/offlinesync/internal/logging"
)

// MemoryPath opens a private in-memory database. It does not survive Close.
const MemoryPath = ":memory:"

// DB wraps the sql.DB with the configuration shared by the local stores.
type DB struct {
	*sql.DB
}

// OpenPath opens a SQLite database at path with:
// - WAL mode so readers do not block the synchronizer
// - synchronous=FULL so an acknowledged enqueue survives power loss
// - a busy timeout for brief lock contention
// - a single connection, since SQLite supports one writer
func OpenPath(path string) (*DB, error) {
	// modernc.org/sqlite registers itself as "sqlite" (pure Go, no CGO)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return &DB{DB: db}, nil
}

// OpenMigrated opens the database at path and applies every pending
// migration found in migrations.
func OpenMigrated(path string, migrations fs.FS) (*DB, error) {
	database, err := OpenPath(path)
	if err != nil {
		return nil, err
	}

	m := NewMigrator(database.DB, migrations)
	if err := m.Initialize(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		database.Close()
		return nil, err
	}
	version, err := m.CurrentVersion()
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	logging.Debug("Local database ready", map[string]interface{}{
		"path":           path,
		"schema_version": version,
	})
	return database, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}
