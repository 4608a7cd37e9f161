// Package store is the annotation store: one document's schema, tags and span
// index behind a single transactional API.
//
// Every mutation runs in one SQLite transaction and holds the write lock;
// reads hold the read lock and never observe a half-applied write.
package store

import (
	"context"
	"database/sql"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"github.com/teranos/tagstore/annot/taggraph"
	"github.com/teranos/tagstore/db"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// Options configures a Store
type Options struct {
	// Path of the SQLite database; db.MemoryPath for a private in-memory store
	Path string
	// ResetOnOpen drops any existing tables before migrating
	ResetOnOpen bool
	// RemoveOnDestroy deletes the database file in Destroy
	RemoveOnDestroy bool
	// Source stamps new tags; empty means the session's working file
	Source string
	// FillDefaults applies attribute defaults to new tags
	FillDefaults bool
	// Logger overrides the component logger
	Logger *zap.SugaredLogger
}

// Store is a handle to one annotation session
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	opts      Options
	sessionID string
	closed    bool
	logger    *zap.SugaredLogger

	// bound is the enclosing transaction of a view handed out by Atomic
	bound db.Querier
}

// Open opens or creates the database at opts.Path and migrates it
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.NewInvalidRequestError("database path cannot be empty")
	}
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("store")
	}

	conn, err := db.OpenWithMigrations(opts.Path, log)
	if err != nil {
		return nil, err
	}
	if opts.ResetOnOpen {
		if err := db.DropAll(ctx, conn); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "failed to reset database")
		}
		if err := db.Migrate(conn, log); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "failed to migrate reset database")
		}
		log.Infow("Database reset on open", logger.FieldPath, opts.Path)
	}

	opts.Logger = log
	return New(conn, opts), nil
}

// New wraps an already migrated database
func New(conn *sql.DB, opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("store")
	}
	id := uuid.New()
	return &Store{
		db:        conn,
		opts:      opts,
		sessionID: id.String(),
		logger:    logger.ChildLogger(log, logger.FieldSession, shortID(id)),
	}
}

// shortID is the base58 form of a uuid, used in log lines
func shortID(id uuid.UUID) string {
	return base58.Encode(id[:])
}

// SessionID identifies this handle in snapshots
func (s *Store) SessionID() string {
	return s.sessionID
}

// ShortSessionID is the compact session id carried by log lines
func (s *Store) ShortSessionID() string {
	id, err := uuid.Parse(s.sessionID)
	if err != nil {
		return s.sessionID
	}
	return shortID(id)
}

// Path is the database path the store was opened with
func (s *Store) Path() string {
	return s.opts.Path
}

// Atomic runs fn against a view of the store bound to one transaction.
// Everything fn does through the view commits together when fn returns nil
// and rolls back together otherwise. fn must not call s itself, which stays
// locked until fn returns. The view is closed once fn returns.
func (s *Store) Atomic(ctx context.Context, fn func(st *Store) error) error {
	if s.bound != nil {
		return fn(s)
	}
	return s.withTx(ctx, "atomic", func(g *taggraph.Graph) error {
		view := &Store{
			opts:      s.opts,
			sessionID: s.sessionID,
			logger:    s.logger,
			bound:     g.Querier(),
		}
		defer view.Close()
		return fn(view)
	})
}

const (
	savepointQuery         = `SAVEPOINT store_op`
	releaseSavepointQuery  = `RELEASE store_op`
	rollbackSavepointQuery = `ROLLBACK TO store_op`
)

// withTx runs fn on a graph bound to a fresh transaction, committing on
// success and rolling back every change on failure
func (s *Store) withTx(ctx context.Context, op string, fn func(g *taggraph.Graph) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrap(errors.ErrStoreClosed, op)
	}
	if s.bound != nil {
		return s.withSavepoint(ctx, op, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to begin %s", op)
	}

	g := taggraph.New(tx, s.logger)
	source, err := s.source(ctx, tx)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := fn(g.WithSource(source)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warnw("Rollback failed", logger.FieldOperation, op, logger.FieldError, rbErr)
		}
		s.logger.Debugw("Rolled back", logger.FieldOperation, op, logger.FieldError, err)
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "failed to commit %s", op)
	}
	return nil
}

// withSavepoint is withTx for a view: each operation is undone on its own
// inside the enclosing transaction. The caller holds s.mu.
func (s *Store) withSavepoint(ctx context.Context, op string, fn func(g *taggraph.Graph) error) error {
	if _, err := s.bound.ExecContext(ctx, savepointQuery); err != nil {
		return errors.Wrapf(err, "failed to begin %s", op)
	}

	source, err := s.source(ctx, s.bound)
	if err == nil {
		err = fn(taggraph.New(s.bound, s.logger).WithSource(source))
	}
	if err != nil {
		if _, rbErr := s.bound.ExecContext(ctx, rollbackSavepointQuery); rbErr != nil {
			s.logger.Warnw("Rollback failed", logger.FieldOperation, op, logger.FieldError, rbErr)
		}
		if _, relErr := s.bound.ExecContext(ctx, releaseSavepointQuery); relErr != nil {
			s.logger.Warnw("Release failed", logger.FieldOperation, op, logger.FieldError, relErr)
		}
		s.logger.Debugw("Rolled back", logger.FieldOperation, op, logger.FieldError, err)
		return err
	}
	if _, err := s.bound.ExecContext(ctx, releaseSavepointQuery); err != nil {
		return errors.Wrapf(err, "failed to release %s", op)
	}
	return nil
}

// withRead runs fn on a graph bound to the database under the read lock
func (s *Store) withRead(op string, fn func(g *taggraph.Graph) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.Wrap(errors.ErrStoreClosed, op)
	}
	if s.bound != nil {
		return fn(taggraph.New(s.bound, s.logger))
	}
	return fn(taggraph.New(s.db, s.logger))
}

// Close releases the database connection. The data is kept. Closing a view
// from Atomic only retires the view.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.bound != nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close database")
	}
	s.logger.Debugw("Store closed", logger.FieldPath, s.opts.Path)
	return nil
}

// Destroy drops every table, closes the connection and, with
// RemoveOnDestroy, deletes the database file. Later calls fail with
// ErrStoreClosed.
func (s *Store) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Wrap(errors.ErrStoreClosed, "destroy")
	}
	if s.bound != nil {
		return errors.NewInvalidRequestError("cannot destroy the store inside an atomic operation")
	}

	if err := db.DropAll(ctx, s.db); err != nil {
		return errors.Wrap(err, "failed to drop tables")
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close database")
	}

	if s.opts.RemoveOnDestroy && !db.IsMemory(s.opts.Path) {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(s.opts.Path + suffix); err != nil && !os.IsNotExist(err) {
				return errors.Wrapf(err, "failed to remove %s", s.opts.Path+suffix)
			}
		}
	}

	s.logger.Infow("Store destroyed", logger.FieldPath, s.opts.Path, logger.FieldRemoved, s.opts.RemoveOnDestroy)
	return nil
}
