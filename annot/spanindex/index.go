// Package spanindex maps character positions to the extent tags covering them.
//
// Every position of every real span gets one char_index row. Non-consuming
// tags are never indexed. Results are ordered by the tags' load order.
package spanindex

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/db"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

const (
	insertLocationQuery = `INSERT OR IGNORE INTO char_index (location, tag_id) VALUES (?, ?)`

	tagsAtQuery = `
		SELECT c.tag_id FROM char_index c
		JOIN tags t ON t.id = c.tag_id
		WHERE c.location = ?
		ORDER BY t.seq`

	locationsQuery = `
		SELECT c.location, c.tag_id FROM char_index c
		JOIN tags t ON t.id = c.tag_id
		ORDER BY c.location, t.seq`
)

// Index is the position to tag-id lookup
type Index struct {
	q      db.Querier
	logger *zap.SugaredLogger
}

// New creates an index over q. A nil logger disables logging.
func New(q db.Querier, log *zap.SugaredLogger) *Index {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Index{q: q, logger: log}
}

// Add indexes every position covered by spans. The sentinel span is skipped.
func (ix *Index) Add(ctx context.Context, tagID string, spans []types.Span) error {
	stmt, err := ix.q.PrepareContext(ctx, insertLocationQuery)
	if err != nil {
		return errors.Wrap(err, "failed to prepare index insert")
	}
	defer stmt.Close()

	count := 0
	for _, sp := range spans {
		if sp.IsSentinel() {
			continue
		}
		for pos := sp.Start; pos < sp.End; pos++ {
			if _, err := stmt.ExecContext(ctx, pos, tagID); err != nil {
				return errors.Wrapf(err, "failed to index %s at %d", tagID, pos)
			}
			count++
		}
	}

	ix.logger.Debugw("Indexed tag", logger.FieldTagID, tagID, logger.FieldCount, count)
	return nil
}

// Remove drops every position of tagID
func (ix *Index) Remove(ctx context.Context, tagID string) error {
	if _, err := ix.q.ExecContext(ctx, `DELETE FROM char_index WHERE tag_id = ?`, tagID); err != nil {
		return errors.Wrapf(err, "failed to unindex %s", tagID)
	}
	return nil
}

// TagIDsAt lists the tags covering pos
func (ix *Index) TagIDsAt(ctx context.Context, pos int) ([]string, error) {
	return ix.queryIDs(ctx, tagsAtQuery, pos)
}

// LocationsWithTags maps each covered position to the tags covering it
func (ix *Index) LocationsWithTags(ctx context.Context) (map[int][]string, error) {
	rows, err := ix.q.QueryContext(ctx, locationsQuery)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query char index")
	}
	defer rows.Close()

	out := make(map[int][]string)
	for rows.Next() {
		var (
			pos   int
			tagID string
		)
		if err := rows.Scan(&pos, &tagID); err != nil {
			return nil, errors.Wrap(err, "failed to scan char index row")
		}
		out[pos] = append(out[pos], tagID)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate char index")
}

// TagIDsInRanges is the union of TagIDsAt over every position of every
// range, each tag listed once. Empty ranges and the sentinel match nothing.
func (ix *Index) TagIDsInRanges(ctx context.Context, ranges []types.Span) ([]string, error) {
	var (
		conds []string
		args  []any
	)
	for _, r := range ranges {
		if r.IsSentinel() || r.End <= r.Start {
			continue
		}
		conds = append(conds, "(c.location >= ? AND c.location < ?)")
		args = append(args, r.Start, r.End)
	}
	if len(conds) == 0 {
		return []string{}, nil
	}

	query := `
		SELECT c.tag_id FROM char_index c
		JOIN tags t ON t.id = c.tag_id
		WHERE ` + strings.Join(conds, " OR ") + `
		GROUP BY c.tag_id
		ORDER BY MIN(t.seq)`
	return ix.queryIDs(ctx, query, args...)
}

// Count is the number of distinct indexed positions
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.q.QueryRowContext(ctx, `SELECT COUNT(DISTINCT location) FROM char_index`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count indexed positions")
	}
	return n, nil
}

func (ix *Index) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := ix.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query char index")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan tag id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to iterate tag ids")
}
