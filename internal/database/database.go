// Package database provides the embedded SQLite storage the dedup core is
// built on: connection pool tuning, WAL checkpointing, and versioned schema
// migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kestrelcrm/dedupd/internal/coreerr"
	"github.com/kestrelcrm/dedupd/internal/logging"
	_ "modernc.org/sqlite"
)

// Connection pool constants.
const (
	// MaxOpenConns limits concurrent database connections. SQLite in WAL
	// mode only supports one writer at a time, so having many connections
	// just increases lock contention. Keep this modest.
	MaxOpenConns = 8

	// MaxIdleConns is the steady-state idle pool size.
	MaxIdleConns = 4

	// CheckpointInterval is how often to run automatic WAL checkpoints.
	CheckpointInterval = 5 * time.Minute
)

// SchemaVersion is the highest migration version this build knows about. If
// a database was written by a newer build, Migrate refuses to run against
// it.
var SchemaVersion = len(migrations)

// DB wraps the SQL database connection.
type DB struct {
	*sql.DB
	path string
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "create database directory", err)
	}

	// PRAGMAs are embedded in the DSN rather than run once after Open,
	// because database/sql creates pooled connections lazily and SQLite
	// PRAGMAs are per-connection; this ensures every connection in the pool
	// gets busy_timeout/WAL/foreign_keys applied, not just the first one.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "open database", err)
	}

	db.SetMaxOpenConns(MaxOpenConns)
	db.SetMaxIdleConns(MaxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, coreerr.Wrap(coreerr.Io, "ping database", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, coreerr.Wrap(coreerr.Io, "set database permissions", err)
	}

	return &DB{DB: db, path: path}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Checkpoint runs a WAL checkpoint to merge the write-ahead log back into
// the main database file. Uses PASSIVE mode so it never blocks a writer.
func (db *DB) Checkpoint() error {
	if _, err := db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return coreerr.Wrap(coreerr.Io, "checkpoint WAL", err)
	}
	return nil
}

// StartCheckpointRoutine starts a background goroutine that periodically
// checkpoints the WAL file until ctx is cancelled.
func (db *DB) StartCheckpointRoutine(ctx context.Context) {
	log := logging.WithComponent("database")

	ticker := time.NewTicker(CheckpointInterval)
	defer ticker.Stop()

	log.Debug().Dur("interval", CheckpointInterval).Msg("WAL checkpoint routine started")

	for {
		select {
		case <-ticker.C:
			if err := db.Checkpoint(); err != nil {
				log.Error().Err(err).Msg("periodic WAL checkpoint failed")
			} else {
				log.Debug().Msg("periodic WAL checkpoint completed")
			}
		case <-ctx.Done():
			log.Debug().Msg("WAL checkpoint routine stopped")
			return
		}
	}
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Migrate runs all pending migrations. Fails with MigrationForward if the
// stored schema version is newer than anything this build knows about.
func (db *DB) Migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return coreerr.Wrap(coreerr.Io, "create schema_version table", err)
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion); err != nil {
		return coreerr.Wrap(coreerr.Io, "read current schema version", err)
	}

	if currentVersion > SchemaVersion {
		return coreerr.New(coreerr.MigrationForward,
			fmt.Sprintf("database schema version %d is newer than this build's known version %d", currentVersion, SchemaVersion))
	}

	for _, m := range migrations {
		if m.Version > currentVersion {
			if err := db.applyMigration(m); err != nil {
				return coreerr.Wrap(coreerr.MigrationRequired, fmt.Sprintf("apply migration %d", m.Version), err)
			}
		}
	}

	return nil
}

func (db *DB) applyMigration(m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration SQL failed: %w", err)
	}

	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}

	return tx.Commit()
}
