package db

import (
	"context"
	"database/sql"
	"embed"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

// Tables lists every table the migrations create, children before parents.
// DropAll removes them in this order so foreign keys never block a drop.
var Tables = []string{
	"attributes",
	"arguments",
	"char_index",
	"spans",
	"tags",
	"id_counters",
	"identifiers",
	"argument_types",
	"attribute_types",
	"tag_types",
	"session",
	"schema_migrations",
}

// Migrate runs all pending migrations.
// If log is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	entries, err := migrations.ReadDir("sqlite/migrations")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	// Sort migrations (000_create_schema_migrations.sql runs first)
	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		version := strings.Split(filename, "_")[0]

		// Check if already applied (schema_migrations created by 000)
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			// Table doesn't exist yet - this must be migration 000
			if version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			if log != nil {
				log.Debugw("Skipping migration (already applied)",
					logger.FieldMigration, filename,
					logger.FieldVersion, version,
				)
			}
			continue
		}

		sqlBytes, err := migrations.ReadFile(filepath.ToSlash(filepath.Join("sqlite/migrations", filename)))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if log != nil {
			log.Debugw("Applying migration",
				logger.FieldMigration, filename,
				logger.FieldVersion, version,
			)
		}

		tx, err := db.Begin()
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}

		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}

		// Record migration (000 creates the table, then records itself)
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
	}

	if log != nil {
		log.Debugw("Migrations complete", logger.FieldTotalCount, len(migrationFiles))
	}

	return nil
}

// DropAll removes every table created by Migrate, leaving an empty database.
func DropAll(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin drop")
	}
	defer tx.Rollback()

	for _, table := range Tables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return errors.Wrapf(err, "drop %s", table)
		}
	}
	return errors.Wrap(tx.Commit(), "commit drop")
}
