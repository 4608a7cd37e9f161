// Package db opens the SQLite database backing an annotation session and
// applies the embedded schema migrations.
package db

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database
const SQLiteBusyTimeoutMS = 5000

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// Querier is the subset of *sql.DB and *sql.Tx the annotation components run on.
// Components never begin transactions themselves; the store hands them a *sql.Tx
// for writes and the *sql.DB for reads.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// IsMemory reports whether path names an in-memory database
func IsMemory(path string) bool {
	return path == MemoryPath || strings.HasPrefix(path, "file::memory:")
}

// dsn adds connection parameters so every pooled connection gets the same pragmas
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000"
}

// Open opens a SQLite database at the specified path with optimized settings.
// If log is provided, logs database operations; otherwise operates silently.
func Open(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	if log != nil {
		log.Debugw("Opening database", logger.FieldPath, path)
	}
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Each connection to :memory: is its own database
	if IsMemory(path) {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for concurrent reads during writes (no-op in memory)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable WAL mode")
	}

	// Enable foreign key constraints
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to enable foreign keys")
	}

	if log != nil {
		log.Infow("Database opened successfully",
			logger.FieldPath, path,
			logger.FieldWALMode, !IsMemory(path),
			logger.FieldForeignKeys, true,
		)
	}

	return db, nil
}

// OpenWithMigrations opens the database and brings its schema up to date
func OpenWithMigrations(path string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", path)
	}
	return db, nil
}
