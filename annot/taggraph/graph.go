// Package taggraph owns extent and link tags: creation, attribute and
// argument binding, removal, and the relationship queries built on the span
// index.
//
// Links reference extent tags through the arguments table; the reverse edge
// is the arguments(extent_id) index, so it can never drift from the forward
// edges.
package taggraph

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/tagstore/annot/ident"
	"github.com/teranos/tagstore/annot/schema"
	"github.com/teranos/tagstore/annot/spanindex"
	"github.com/teranos/tagstore/annot/spans"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/db"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

const (
	tagInsertQuery = `
		INSERT INTO tags (id, tag_type_id, kind, source, text) VALUES (?, ?, ?, ?, ?)`

	spanInsertQuery = `
		INSERT INTO spans (tag_id, ord, start_pos, end_pos) VALUES (?, ?, ?, ?)`

	attributeUpsertQuery = `
		INSERT INTO attributes (tag_id, attribute_type_id, value) VALUES (?, ?, ?)
		ON CONFLICT(tag_id, attribute_type_id) DO UPDATE SET value = excluded.value`

	argumentUpsertQuery = `
		INSERT INTO arguments (link_id, argument_type_id, extent_id) VALUES (?, ?, ?)
		ON CONFLICT(link_id, argument_type_id) DO UPDATE SET extent_id = excluded.extent_id`
)

// Graph runs tag operations on one Querier
type Graph struct {
	q      db.Querier
	reg    *schema.Registry
	alloc  *ident.Allocator
	index  *spanindex.Index
	source string
	logger *zap.SugaredLogger
}

// New creates a graph and its schema, identifier and index components over q
func New(q db.Querier, log *zap.SugaredLogger) *Graph {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Graph{
		q:      q,
		reg:    schema.NewRegistry(q, log.Named("schema")),
		alloc:  ident.NewAllocator(q, log.Named("ident")),
		index:  spanindex.New(q, log.Named("spanindex")),
		logger: log.Named("taggraph"),
	}
}

// WithSource returns a graph that stamps new tags with source
func (g *Graph) WithSource(source string) *Graph {
	cp := *g
	cp.source = source
	return &cp
}

// Querier is the database handle or transaction the graph runs on
func (g *Graph) Querier() db.Querier { return g.q }

// Registry is the schema registry sharing this graph's Querier
func (g *Graph) Registry() *schema.Registry { return g.reg }

// Allocator is the identifier allocator sharing this graph's Querier
func (g *Graph) Allocator() *ident.Allocator { return g.alloc }

// Index is the span index sharing this graph's Querier
func (g *Graph) Index() *spanindex.Index { return g.index }

// CreateExtentTag creates an extent tag. An empty id is allocated from the
// type's prefix; otherwise the id is registered as given.
func (g *Graph) CreateExtentTag(ctx context.Context, id string, tagType types.TagType, text string, in []types.Span) (*types.ExtentTag, error) {
	tt, err := g.reg.TagType(ctx, tagType.ID)
	if err != nil {
		return nil, err
	}
	if tt.IsLink {
		return nil, errors.Mark(errors.ErrTagKindMismatch, "%s is a link type", tt.Name)
	}
	normalized, err := spans.Normalize(in, tt.NonConsuming)
	if err != nil {
		return nil, errors.Wrapf(err, "spans of new %s tag", tt.Name)
	}

	id, err = g.claim(ctx, tt, id)
	if err != nil {
		return nil, err
	}
	if _, err := g.q.ExecContext(ctx, tagInsertQuery, id, tt.ID, types.KindExtent, g.source, text); err != nil {
		return nil, errors.Wrapf(err, "failed to insert tag %s", id)
	}
	for ord, sp := range normalized {
		if _, err := g.q.ExecContext(ctx, spanInsertQuery, id, ord, sp.Start, sp.End); err != nil {
			return nil, errors.Wrapf(err, "failed to insert span %d of %s", ord, id)
		}
	}
	if err := g.index.Add(ctx, id, normalized); err != nil {
		return nil, err
	}

	g.logger.Debugw("Created extent tag", logger.FieldTagID, id, logger.FieldTagType, tt.Name, logger.FieldSpans, spans.Format(normalized))
	return &types.ExtentTag{
		ID:     id,
		Type:   tt,
		Source: g.source,
		Text:   text,
		Spans:  normalized,
	}, nil
}

// CreateLinkTag creates a link tag bound to the given extent tags
func (g *Graph) CreateLinkTag(ctx context.Context, id string, tagType types.TagType, bindings []types.Binding) (*types.LinkTag, error) {
	tt, err := g.reg.TagType(ctx, tagType.ID)
	if err != nil {
		return nil, err
	}
	if !tt.IsLink {
		return nil, errors.Mark(errors.ErrTagKindMismatch, "%s is an extent type", tt.Name)
	}

	resolved := make([]types.ArgumentType, len(bindings))
	seen := make(map[types.ArgumentTypeID]bool, len(bindings))
	for i, b := range bindings {
		arg, err := g.argumentTypeOf(ctx, tt, b.Type)
		if err != nil {
			return nil, err
		}
		if seen[arg.ID] {
			return nil, errors.NewInvalidRequestError("argument %s of %s is bound more than once", arg.Name, tt.Name)
		}
		seen[arg.ID] = true
		if err := g.checkTarget(ctx, b.Target); err != nil {
			return nil, err
		}
		resolved[i] = arg
	}

	id, err = g.claim(ctx, tt, id)
	if err != nil {
		return nil, err
	}
	if _, err := g.q.ExecContext(ctx, tagInsertQuery, id, tt.ID, types.KindLink, g.source, ""); err != nil {
		return nil, errors.Wrapf(err, "failed to insert tag %s", id)
	}
	for i, b := range bindings {
		if _, err := g.q.ExecContext(ctx, argumentUpsertQuery, id, resolved[i].ID, b.Target); err != nil {
			return nil, errors.Wrapf(err, "failed to bind %s of %s", resolved[i].Name, id)
		}
	}

	g.logger.Debugw("Created link tag", logger.FieldTagID, id, logger.FieldTagType, tt.Name, logger.FieldCount, len(bindings))
	return g.LinkTag(ctx, id)
}

// AddAttribute sets an attribute on a tag, replacing any previous value
func (g *Graph) AddAttribute(ctx context.Context, tagID string, attType types.AttributeType, value string) error {
	h, err := g.header(ctx, tagID)
	if err != nil {
		return err
	}
	at, err := g.reg.AttributeType(ctx, attType.ID)
	if err != nil {
		return err
	}
	if at.TagTypeID != h.typeID {
		return errors.Mark(errors.ErrUnknownType, "attribute %s does not belong to the type of %s", at.Name, tagID)
	}
	if !at.Allows(value) {
		return errors.Mark(errors.ErrInvalidAttributeValue, "%q is not a legal value of %s", value, at.Name)
	}

	if _, err := g.q.ExecContext(ctx, attributeUpsertQuery, tagID, at.ID, value); err != nil {
		return errors.Wrapf(err, "failed to set %s on %s", at.Name, tagID)
	}
	g.logger.Debugw("Set attribute", logger.FieldTagID, tagID, logger.FieldAttribute, at.Name)
	return nil
}

// AddArgument binds an argument of a link tag, replacing any previous target
func (g *Graph) AddArgument(ctx context.Context, linkID string, argType types.ArgumentType, extentID string) error {
	h, err := g.header(ctx, linkID)
	if err != nil {
		return err
	}
	if h.kind != types.KindLink {
		return errors.Mark(errors.ErrTagKindMismatch, "%s is not a link tag", linkID)
	}
	tt, err := g.reg.TagType(ctx, h.typeID)
	if err != nil {
		return err
	}
	arg, err := g.argumentTypeOf(ctx, tt, argType)
	if err != nil {
		return err
	}
	if err := g.checkTarget(ctx, extentID); err != nil {
		return err
	}

	if _, err := g.q.ExecContext(ctx, argumentUpsertQuery, linkID, arg.ID, extentID); err != nil {
		return errors.Wrapf(err, "failed to bind %s of %s", arg.Name, linkID)
	}
	g.logger.Debugw("Bound argument", logger.FieldTagID, linkID, logger.FieldArgument, arg.Name, logger.FieldTarget, extentID)
	return nil
}

// claim allocates an id when none is given, otherwise registers it
func (g *Graph) claim(ctx context.Context, tt types.TagType, id string) (string, error) {
	if id == "" {
		return g.alloc.Allocate(ctx, tt)
	}
	if err := g.alloc.Register(ctx, tt, id); err != nil {
		return "", err
	}
	return id, nil
}

// argumentTypeOf reloads arg and checks it belongs to the link type
func (g *Graph) argumentTypeOf(ctx context.Context, linkType types.TagType, arg types.ArgumentType) (types.ArgumentType, error) {
	fresh, err := g.reg.ArgumentType(ctx, arg.ID)
	if err != nil {
		return types.ArgumentType{}, err
	}
	if fresh.TagTypeID != linkType.ID {
		return types.ArgumentType{}, errors.Mark(errors.ErrUnknownArgumentType, "argument %s is not defined on %s", fresh.Name, linkType.Name)
	}
	return fresh, nil
}

// checkTarget requires extentID to name an existing extent tag
func (g *Graph) checkTarget(ctx context.Context, extentID string) error {
	h, err := g.header(ctx, extentID)
	if errors.IsNotFoundError(err) {
		return errors.Mark(errors.ErrDanglingReference, "argument target %q does not exist", extentID)
	}
	if err != nil {
		return err
	}
	if h.kind != types.KindExtent {
		return errors.Mark(errors.ErrDanglingReference, "argument target %q is a link tag", extentID)
	}
	return nil
}
