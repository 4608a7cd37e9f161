package store

import (
	"context"
	"database/sql"

	"github.com/teranos/tagstore/annot/taggraph"
	"github.com/teranos/tagstore/db"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// Session metadata keys
const (
	KeyWorkingFile = "working_file"
	KeySchemaName  = "schema_name"
)

const sessionUpsertQuery = `
	INSERT INTO session (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`

func sessionValue(ctx context.Context, q db.Querier, key string) (string, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read session %s", key)
	}
	return v, nil
}

func setSessionValue(ctx context.Context, q db.Querier, key, value string) error {
	if _, err := q.ExecContext(ctx, sessionUpsertQuery, key, value); err != nil {
		return errors.Wrapf(err, "failed to write session %s", key)
	}
	return nil
}

// source is the reference stamped on new tags
func (s *Store) source(ctx context.Context, q db.Querier) (string, error) {
	if s.opts.Source != "" {
		return s.opts.Source, nil
	}
	return sessionValue(ctx, q, KeyWorkingFile)
}

// SetWorkingFile records the document being annotated. New tags take it as
// their source unless Options.Source is set.
func (s *Store) SetWorkingFile(ctx context.Context, path string) error {
	return s.withTx(ctx, "set working file", func(g *taggraph.Graph) error {
		if err := setSessionValue(ctx, g.Querier(), KeyWorkingFile, path); err != nil {
			return err
		}
		s.logger.Infow("Working file set", logger.FieldWorkingFile, path)
		return nil
	})
}

// WorkingFile returns the recorded document path, or "" if none
func (s *Store) WorkingFile(ctx context.Context) (string, error) {
	var v string
	err := s.withRead("working file", func(g *taggraph.Graph) error {
		var err error
		v, err = sessionValue(ctx, g.Querier(), KeyWorkingFile)
		return err
	})
	return v, err
}

// SetSchemaName records the name of the loaded schema
func (s *Store) SetSchemaName(ctx context.Context, name string) error {
	return s.withTx(ctx, "set schema name", func(g *taggraph.Graph) error {
		return setSessionValue(ctx, g.Querier(), KeySchemaName, name)
	})
}

// SchemaName returns the recorded schema name, or "" if none
func (s *Store) SchemaName(ctx context.Context) (string, error) {
	var v string
	err := s.withRead("schema name", func(g *taggraph.Graph) error {
		var err error
		v, err = sessionValue(ctx, g.Querier(), KeySchemaName)
		return err
	})
	return v, err
}
