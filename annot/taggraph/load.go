package taggraph

import (
	"context"
	"database/sql"
	"strings"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
)

const headerColumns = `seq, id, tag_type_id, kind, source, text`

// header is one tags row
type header struct {
	seq    int64
	id     string
	typeID types.TagTypeID
	kind   types.Kind
	source string
	text   string
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHeader(s scanner) (header, error) {
	var h header
	err := s.Scan(&h.seq, &h.id, &h.typeID, &h.kind, &h.source, &h.text)
	return h, err
}

func (g *Graph) header(ctx context.Context, id string) (header, error) {
	h, err := scanHeader(g.q.QueryRowContext(ctx, `SELECT `+headerColumns+` FROM tags WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return h, errors.NewNotFoundError("tag %q does not exist", id)
	}
	if err != nil {
		return h, errors.Wrapf(err, "failed to load tag %s", id)
	}
	return h, nil
}

// headers reads every row of query before returning, so callers can issue
// further queries on a single-connection database
func (g *Graph) headers(ctx context.Context, query string, args ...any) ([]header, error) {
	rows, err := g.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tags")
	}
	defer rows.Close()

	var out []header
	for rows.Next() {
		h, err := scanHeader(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan tag")
		}
		out = append(out, h)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate tags")
}

// headersByID loads the given tags, keeping the order of ids
func (g *Graph) headersByID(ctx context.Context, ids []string) ([]header, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	found, err := g.headers(ctx, `SELECT `+headerColumns+` FROM tags WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]header, len(found))
	for _, h := range found {
		byID[h.id] = h
	}
	out := make([]header, 0, len(ids))
	for _, id := range ids {
		h, ok := byID[id]
		if !ok {
			return nil, errors.NewNotFoundError("tag %q does not exist", id)
		}
		out = append(out, h)
	}
	return out, nil
}

// loader hydrates tags, caching tag types for the duration of one query
type loader struct {
	g        *Graph
	tagTypes map[types.TagTypeID]types.TagType
}

func (g *Graph) newLoader() *loader {
	return &loader{g: g, tagTypes: make(map[types.TagTypeID]types.TagType)}
}

func (l *loader) tagType(ctx context.Context, id types.TagTypeID) (types.TagType, error) {
	if tt, ok := l.tagTypes[id]; ok {
		return tt, nil
	}
	tt, err := l.g.reg.TagType(ctx, id)
	if err != nil {
		return tt, err
	}
	l.tagTypes[id] = tt
	return tt, nil
}

func (l *loader) tag(ctx context.Context, h header) (types.Tag, error) {
	if h.kind == types.KindLink {
		return l.link(ctx, h)
	}
	return l.extent(ctx, h)
}

func (l *loader) extent(ctx context.Context, h header) (*types.ExtentTag, error) {
	if h.kind != types.KindExtent {
		return nil, errors.Mark(errors.ErrTagKindMismatch, "%s is not an extent tag", h.id)
	}
	tt, err := l.tagType(ctx, h.typeID)
	if err != nil {
		return nil, err
	}
	sp, err := l.g.spans(ctx, h.id)
	if err != nil {
		return nil, err
	}
	attrs, err := l.g.attributes(ctx, h.id)
	if err != nil {
		return nil, err
	}
	return &types.ExtentTag{
		ID:         h.id,
		Type:       tt,
		Source:     h.source,
		Text:       h.text,
		Spans:      sp,
		Attributes: attrs,
	}, nil
}

func (l *loader) link(ctx context.Context, h header) (*types.LinkTag, error) {
	if h.kind != types.KindLink {
		return nil, errors.Mark(errors.ErrTagKindMismatch, "%s is not a link tag", h.id)
	}
	tt, err := l.tagType(ctx, h.typeID)
	if err != nil {
		return nil, err
	}
	args, err := l.g.arguments(ctx, h.id)
	if err != nil {
		return nil, err
	}
	attrs, err := l.g.attributes(ctx, h.id)
	if err != nil {
		return nil, err
	}
	return &types.LinkTag{
		ID:         h.id,
		Type:       tt,
		Source:     h.source,
		Arguments:  args,
		Attributes: attrs,
	}, nil
}

func (l *loader) extents(ctx context.Context, hs []header) ([]*types.ExtentTag, error) {
	out := make([]*types.ExtentTag, 0, len(hs))
	for _, h := range hs {
		t, err := l.extent(ctx, h)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (g *Graph) spans(ctx context.Context, tagID string) ([]types.Span, error) {
	rows, err := g.q.QueryContext(ctx, `SELECT start_pos, end_pos FROM spans WHERE tag_id = ? ORDER BY ord`, tagID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query spans of %s", tagID)
	}
	defer rows.Close()

	out := []types.Span{}
	for rows.Next() {
		var sp types.Span
		if err := rows.Scan(&sp.Start, &sp.End); err != nil {
			return nil, errors.Wrap(err, "failed to scan span")
		}
		out = append(out, sp)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate spans")
}

func (g *Graph) attributes(ctx context.Context, tagID string) ([]types.Attribute, error) {
	rows, err := g.q.QueryContext(ctx, `
		SELECT a.attribute_type_id, at.name, a.value
		FROM attributes a JOIN attribute_types at ON at.id = a.attribute_type_id
		WHERE a.tag_id = ?
		ORDER BY at.id`, tagID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query attributes of %s", tagID)
	}
	defer rows.Close()

	var out []types.Attribute
	for rows.Next() {
		var a types.Attribute
		if err := rows.Scan(&a.TypeID, &a.Name, &a.Value); err != nil {
			return nil, errors.Wrap(err, "failed to scan attribute")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate attributes")
}

func (g *Graph) arguments(ctx context.Context, linkID string) ([]types.Argument, error) {
	rows, err := g.q.QueryContext(ctx, `
		SELECT a.argument_type_id, at.name, a.extent_id
		FROM arguments a JOIN argument_types at ON at.id = a.argument_type_id
		WHERE a.link_id = ?
		ORDER BY at.id`, linkID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query arguments of %s", linkID)
	}
	defer rows.Close()

	var out []types.Argument
	for rows.Next() {
		var a types.Argument
		if err := rows.Scan(&a.TypeID, &a.Name, &a.TagID); err != nil {
			return nil, errors.Wrap(err, "failed to scan argument")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate arguments")
}
