package taggraph

import (
	"context"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
	"github.com/teranos/tagstore/logger"
)

// RemoveTag deletes a tag with its spans, attributes and arguments, and
// frees its id. An extent tag argued by a link is only removed with cascade,
// which removes those links first, depth first. Returns every removed id.
func (g *Graph) RemoveTag(ctx context.Context, tagID string, cascade bool) ([]string, error) {
	h, err := g.header(ctx, tagID)
	if err != nil {
		return nil, err
	}

	var removed []string
	if h.kind == types.KindExtent {
		links, err := g.referencingLinkIDs(ctx, tagID)
		if err != nil {
			return nil, err
		}
		if len(links) > 0 && !cascade {
			return nil, errors.WithHint(
				errors.Mark(errors.ErrTagInUse, "tag %s is argued by %d link(s)", tagID, len(links)),
				"remove the links first or pass cascade")
		}
		for _, linkID := range links {
			ids, err := g.RemoveTag(ctx, linkID, cascade)
			if err != nil {
				return nil, errors.Wrapf(err, "cascade from %s", tagID)
			}
			removed = append(removed, ids...)
		}
	}

	if err := g.index.Remove(ctx, tagID); err != nil {
		return nil, err
	}
	// spans, attributes, char_index and outgoing arguments cascade
	if _, err := g.q.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, tagID); err != nil {
		return nil, errors.Wrapf(err, "failed to delete tag %s", tagID)
	}
	if err := g.alloc.Release(ctx, tagID); err != nil {
		return nil, err
	}

	g.logger.Debugw("Removed tag", logger.FieldTagID, tagID, logger.FieldTagKind, h.kind, logger.FieldCascade, cascade)
	return append(removed, tagID), nil
}
