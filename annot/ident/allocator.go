// Package ident issues and tracks tag identifiers.
//
// Extent and link tags share one namespace. Generated ids are the tag type's
// prefix followed by a counter; the counter remembers the highest suffix ever
// seen for the type, so an id is never handed out twice even after release.
package ident

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/db"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

const (
	identifierInsertQuery = `INSERT INTO identifiers (id, tag_type_id) VALUES (?, ?)`

	counterRaiseQuery = `
		INSERT INTO id_counters (tag_type_id, max_seen) VALUES (?, ?)
		ON CONFLICT(tag_type_id) DO UPDATE SET max_seen = MAX(max_seen, excluded.max_seen)`
)

// Allocator hands out and registers identifiers
type Allocator struct {
	q      db.Querier
	logger *zap.SugaredLogger
}

// NewAllocator creates an allocator over q. A nil logger disables logging.
func NewAllocator(q db.Querier, log *zap.SugaredLogger) *Allocator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Allocator{q: q, logger: log}
}

// Allocate returns prefix + (maxSeen+1) for the type and registers it.
// Ids already taken by another type sharing the prefix are skipped.
func (a *Allocator) Allocate(ctx context.Context, tt types.TagType) (string, error) {
	maxSeen, err := a.MaxSeen(ctx, tt.ID)
	if err != nil {
		return "", err
	}

	n := maxSeen + 1
	id := tt.Prefix + strconv.Itoa(n)
	for {
		taken, err := a.Exists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			break
		}
		n++
		id = tt.Prefix + strconv.Itoa(n)
	}

	if err := a.insert(ctx, tt, id); err != nil {
		return "", err
	}
	if err := a.raise(ctx, tt.ID, n); err != nil {
		return "", err
	}

	a.logger.Debugw("Allocated id", logger.FieldTagID, id, logger.FieldTagType, tt.Name)
	return id, nil
}

// Register records an externally supplied id. If the id is the type's prefix
// followed by digits, the counter is raised so Allocate never collides with it.
func (a *Allocator) Register(ctx context.Context, tt types.TagType, id string) error {
	if id == "" {
		return errors.NewInvalidRequestError("tag id cannot be empty")
	}
	taken, err := a.Exists(ctx, id)
	if err != nil {
		return err
	}
	if taken {
		return errors.Mark(errors.ErrDuplicateID, "id %q already registered", id)
	}

	if err := a.insert(ctx, tt, id); err != nil {
		return err
	}
	if n, ok := Suffix(tt.Prefix, id); ok {
		if err := a.raise(ctx, tt.ID, n); err != nil {
			return err
		}
	}

	a.logger.Debugw("Registered id", logger.FieldTagID, id, logger.FieldTagType, tt.Name)
	return nil
}

// Exists reports whether id is registered for any tag type
func (a *Allocator) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := a.q.QueryRowContext(ctx, `SELECT 1 FROM identifiers WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to check id %s", id)
	}
	return true, nil
}

// Owner returns the tag type an id was registered under
func (a *Allocator) Owner(ctx context.Context, id string) (types.TagTypeID, error) {
	var owner types.TagTypeID
	err := a.q.QueryRowContext(ctx, `SELECT tag_type_id FROM identifiers WHERE id = ?`, id).Scan(&owner)
	if err == sql.ErrNoRows {
		return 0, errors.NewNotFoundError("id %q is not registered", id)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to load owner of %s", id)
	}
	return owner, nil
}

// Release frees id so it can be registered again. The counter is untouched.
func (a *Allocator) Release(ctx context.Context, id string) error {
	res, err := a.q.ExecContext(ctx, `DELETE FROM identifiers WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to release id %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.NewNotFoundError("id %q is not registered", id)
	}
	a.logger.Debugw("Released id", logger.FieldTagID, id)
	return nil
}

// MaxSeen is the highest counter value recorded for a tag type
func (a *Allocator) MaxSeen(ctx context.Context, tagTypeID types.TagTypeID) (int, error) {
	var n int
	err := a.q.QueryRowContext(ctx, `SELECT max_seen FROM id_counters WHERE tag_type_id = ?`, tagTypeID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read counter for tag type #%d", tagTypeID)
	}
	return n, nil
}

// Suffix parses the counter out of an id of the form prefix+digits
func Suffix(prefix, id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (a *Allocator) insert(ctx context.Context, tt types.TagType, id string) error {
	if _, err := a.q.ExecContext(ctx, identifierInsertQuery, id, tt.ID); err != nil {
		return errors.Wrapf(err, "failed to register id %s", id)
	}
	return nil
}

func (a *Allocator) raise(ctx context.Context, tagTypeID types.TagTypeID, n int) error {
	if _, err := a.q.ExecContext(ctx, counterRaiseQuery, tagTypeID, n); err != nil {
		return errors.Wrapf(err, "failed to raise counter for tag type #%d", tagTypeID)
	}
	return nil
}
