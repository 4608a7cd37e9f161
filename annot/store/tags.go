package store

import (
	"context"
	"slices"

	"github.com/teranos/tagstore/annot/spans"
	"github.com/teranos/tagstore/annot/taggraph"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// TagRequest describes a tag to create together with its attributes and,
// for link types, its arguments
type TagRequest struct {
	// ID is an externally supplied id; empty allocates one
	ID string
	// Type is the tag type name
	Type string
	Text string
	// Spans of an extent tag; ignored for links
	Spans []types.Span
	// Arguments maps argument names to extent tag ids; links only
	Arguments map[string]string
	// Attributes maps attribute names to values
	Attributes map[string]string
	// Source overrides the store's source reference for this tag when
	// non-nil. A pointer to "" stamps an empty source.
	Source *string
	// SkipDefaults leaves unset attributes unset even with FillDefaults
	SkipDefaults bool
}

// CreateExtentTag creates an extent tag. An empty id is allocated.
func (s *Store) CreateExtentTag(ctx context.Context, id string, tagType types.TagType, text string, in []types.Span) (*types.ExtentTag, error) {
	var tag *types.ExtentTag
	err := s.withTx(ctx, "create extent tag", func(g *taggraph.Graph) error {
		var err error
		if tag, err = g.CreateExtentTag(ctx, id, tagType, text, in); err != nil {
			return err
		}
		if s.opts.FillDefaults {
			if err := fillDefaults(ctx, g, tag.ID, tag.Type, nil); err != nil {
				return err
			}
			tag, err = g.ExtentTag(ctx, tag.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Extent tag created", logger.FieldTagID, tag.ID, logger.FieldTagType, tag.Type.Name, logger.FieldSpans, spans.Format(tag.Spans))
	return tag, nil
}

// CreateLinkTag creates a link tag over existing extent tags
func (s *Store) CreateLinkTag(ctx context.Context, id string, tagType types.TagType, bindings []types.Binding) (*types.LinkTag, error) {
	var tag *types.LinkTag
	err := s.withTx(ctx, "create link tag", func(g *taggraph.Graph) error {
		var err error
		if tag, err = g.CreateLinkTag(ctx, id, tagType, bindings); err != nil {
			return err
		}
		if s.opts.FillDefaults {
			if err := fillDefaults(ctx, g, tag.ID, tag.Type, nil); err != nil {
				return err
			}
			tag, err = g.LinkTag(ctx, tag.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Link tag created", logger.FieldTagID, tag.ID, logger.FieldTagType, tag.Type.Name, logger.FieldCount, len(tag.Arguments))
	return tag, nil
}

// CreateTag creates a tag with its attributes and arguments in one
// transaction. Keys are applied in sorted order so failures are
// reproducible.
func (s *Store) CreateTag(ctx context.Context, req TagRequest) (types.Tag, error) {
	var tag types.Tag
	err := s.withTx(ctx, "create tag", func(g *taggraph.Graph) error {
		if req.Source != nil {
			g = g.WithSource(*req.Source)
		}
		tt, err := g.Registry().LookupByName(ctx, req.Type)
		if err != nil {
			return err
		}

		var id string
		if tt.IsLink {
			bindings := make([]types.Binding, 0, len(req.Arguments))
			for _, name := range sortedKeys(req.Arguments) {
				arg, err := g.Registry().ArgumentTypeByName(ctx, tt.ID, name)
				if err != nil {
					return err
				}
				bindings = append(bindings, types.Binding{Type: arg, Target: req.Arguments[name]})
			}
			link, err := g.CreateLinkTag(ctx, req.ID, tt, bindings)
			if err != nil {
				return err
			}
			id = link.ID
		} else {
			if len(req.Arguments) > 0 {
				return errors.Mark(errors.ErrTagKindMismatch, "%s is an extent type and takes no arguments", tt.Name)
			}
			extent, err := g.CreateExtentTag(ctx, req.ID, tt, req.Text, req.Spans)
			if err != nil {
				return err
			}
			id = extent.ID
		}

		for _, name := range sortedKeys(req.Attributes) {
			at, err := g.Registry().AttributeTypeByName(ctx, tt.ID, name)
			if err != nil {
				return err
			}
			if err := g.AddAttribute(ctx, id, at, req.Attributes[name]); err != nil {
				return err
			}
		}
		if s.opts.FillDefaults && !req.SkipDefaults {
			if err := fillDefaults(ctx, g, id, tt, req.Attributes); err != nil {
				return err
			}
		}

		tag, err = g.Tag(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Tag created", logger.FieldTagID, tag.TagID(), logger.FieldTagType, req.Type, logger.FieldTagKind, tag.Kind())
	return tag, nil
}

// AddAttribute sets an attribute value, replacing any previous value
func (s *Store) AddAttribute(ctx context.Context, tagID string, attType types.AttributeType, value string) error {
	return s.withTx(ctx, "add attribute", func(g *taggraph.Graph) error {
		return g.AddAttribute(ctx, tagID, attType, value)
	})
}

// AddArgument binds an argument of a link tag, replacing any previous target
func (s *Store) AddArgument(ctx context.Context, linkID string, argType types.ArgumentType, extentID string) error {
	return s.withTx(ctx, "add argument", func(g *taggraph.Graph) error {
		return g.AddArgument(ctx, linkID, argType, extentID)
	})
}

// RemoveTag deletes a tag. Without cascade an extent tag argued by a link
// fails with ErrTagInUse. Returns every removed id.
func (s *Store) RemoveTag(ctx context.Context, tagID string, cascade bool) ([]string, error) {
	var removed []string
	err := s.withTx(ctx, "remove tag", func(g *taggraph.Graph) error {
		var err error
		removed, err = g.RemoveTag(ctx, tagID, cascade)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Tag removed", logger.FieldTagID, tagID, logger.FieldCascade, cascade, logger.FieldCount, len(removed))
	return removed, nil
}

// fillDefaults applies attribute defaults not present in given
func fillDefaults(ctx context.Context, g *taggraph.Graph, tagID string, tt types.TagType, given map[string]string) error {
	ats, err := g.Registry().AttributeTypes(ctx, tt.ID)
	if err != nil {
		return err
	}
	for _, at := range ats {
		if at.Default == nil {
			continue
		}
		if _, ok := given[at.Name]; ok {
			continue
		}
		if err := g.AddAttribute(ctx, tagID, at, *at.Default); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
