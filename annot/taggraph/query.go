package taggraph

import (
	"context"
	"slices"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
)

// Tag loads a tag of either kind
func (g *Graph) Tag(ctx context.Context, id string) (types.Tag, error) {
	h, err := g.header(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.newLoader().tag(ctx, h)
}

// ExtentTag loads an extent tag
func (g *Graph) ExtentTag(ctx context.Context, id string) (*types.ExtentTag, error) {
	h, err := g.header(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.newLoader().extent(ctx, h)
}

// LinkTag loads a link tag
func (g *Graph) LinkTag(ctx context.Context, id string) (*types.LinkTag, error) {
	h, err := g.header(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.newLoader().link(ctx, h)
}

// TagTypeOf returns the type of a tag
func (g *Graph) TagTypeOf(ctx context.Context, id string) (types.TagType, error) {
	h, err := g.header(ctx, id)
	if err != nil {
		return types.TagType{}, err
	}
	return g.reg.TagType(ctx, h.typeID)
}

// SpansOf returns the spans of an extent tag
func (g *Graph) SpansOf(ctx context.Context, id string) ([]types.Span, error) {
	h, err := g.header(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.kind != types.KindExtent {
		return nil, errors.Mark(errors.ErrTagKindMismatch, "%s is a link tag and has no spans", id)
	}
	return g.spans(ctx, id)
}

// IDExists reports whether id is registered
func (g *Graph) IDExists(ctx context.Context, id string) (bool, error) {
	return g.alloc.Exists(ctx, id)
}

// AllTags lists every tag in load order
func (g *Graph) AllTags(ctx context.Context) ([]types.Tag, error) {
	hs, err := g.headers(ctx, `SELECT `+headerColumns+` FROM tags ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	return g.hydrate(ctx, hs)
}

// TagsOfType lists the tags of one type in load order
func (g *Graph) TagsOfType(ctx context.Context, tagTypeID types.TagTypeID) ([]types.Tag, error) {
	if _, err := g.reg.TagType(ctx, tagTypeID); err != nil {
		return nil, err
	}
	hs, err := g.headers(ctx, `SELECT `+headerColumns+` FROM tags WHERE tag_type_id = ? ORDER BY seq`, tagTypeID)
	if err != nil {
		return nil, err
	}
	return g.hydrate(ctx, hs)
}

func (g *Graph) hydrate(ctx context.Context, hs []header) ([]types.Tag, error) {
	l := g.newLoader()
	out := make([]types.Tag, 0, len(hs))
	for _, h := range hs {
		t, err := l.tag(ctx, h)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ExtentTagsByType groups every extent tag by type name. With consumingOnly,
// non-consuming tags are left out.
func (g *Graph) ExtentTagsByType(ctx context.Context, consumingOnly bool) (map[string][]*types.ExtentTag, error) {
	hs, err := g.headers(ctx, `SELECT `+headerColumns+` FROM tags WHERE kind = ? ORDER BY seq`, types.KindExtent)
	if err != nil {
		return nil, err
	}
	tags, err := g.newLoader().extents(ctx, hs)
	if err != nil {
		return nil, err
	}
	if consumingOnly {
		tags = slices.DeleteFunc(tags, (*types.ExtentTag).IsNonConsuming)
	}
	return groupByType(tags), nil
}

// LinksReferencing groups the link tags arguing extentID by link type name
func (g *Graph) LinksReferencing(ctx context.Context, extentID string) (map[string][]*types.LinkTag, error) {
	h, err := g.header(ctx, extentID)
	if err != nil {
		return nil, err
	}
	if h.kind != types.KindExtent {
		return nil, errors.Mark(errors.ErrTagKindMismatch, "%s is not an extent tag", extentID)
	}

	ids, err := g.referencingLinkIDs(ctx, extentID)
	if err != nil {
		return nil, err
	}
	hs, err := g.headersByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	l := g.newLoader()
	out := make(map[string][]*types.LinkTag)
	for _, lh := range hs {
		link, err := l.link(ctx, lh)
		if err != nil {
			return nil, err
		}
		out[link.Type.Name] = append(out[link.Type.Name], link)
	}
	return out, nil
}

// referencingLinkIDs lists the links with an argument bound to extentID, in load order
func (g *Graph) referencingLinkIDs(ctx context.Context, extentID string) ([]string, error) {
	rows, err := g.q.QueryContext(ctx, `
		SELECT a.link_id FROM arguments a
		JOIN tags t ON t.id = a.link_id
		WHERE a.extent_id = ?
		GROUP BY a.link_id
		ORDER BY MIN(t.seq)`, extentID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query links referencing %s", extentID)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan link id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to iterate link ids")
}

// TagsAt lists the extent tags covering pos
func (g *Graph) TagsAt(ctx context.Context, pos int) ([]*types.ExtentTag, error) {
	ids, err := g.index.TagIDsAt(ctx, pos)
	if err != nil {
		return nil, err
	}
	return g.extentsByID(ctx, ids)
}

// TagsInRanges lists the extent tags covering any position of any range
func (g *Graph) TagsInRanges(ctx context.Context, ranges []types.Span) ([]*types.ExtentTag, error) {
	ids, err := g.index.TagIDsInRanges(ctx, ranges)
	if err != nil {
		return nil, err
	}
	return g.extentsByID(ctx, ids)
}

// TagsByTypeAt groups TagsAt by type name
func (g *Graph) TagsByTypeAt(ctx context.Context, pos int) (map[string][]*types.ExtentTag, error) {
	tags, err := g.TagsAt(ctx, pos)
	if err != nil {
		return nil, err
	}
	return groupByType(tags), nil
}

// TagsByTypeIn groups TagsInRanges by type name
func (g *Graph) TagsByTypeIn(ctx context.Context, ranges []types.Span) (map[string][]*types.ExtentTag, error) {
	tags, err := g.TagsInRanges(ctx, ranges)
	if err != nil {
		return nil, err
	}
	return groupByType(tags), nil
}

// LocationsWithTags maps every covered position to its extent tags
func (g *Graph) LocationsWithTags(ctx context.Context) (map[int][]*types.ExtentTag, error) {
	locs, err := g.index.LocationsWithTags(ctx)
	if err != nil {
		return nil, err
	}

	l := g.newLoader()
	cache := make(map[string]*types.ExtentTag)
	out := make(map[int][]*types.ExtentTag, len(locs))
	for pos, ids := range locs {
		for _, id := range ids {
			t, ok := cache[id]
			if !ok {
				h, err := g.header(ctx, id)
				if err != nil {
					return nil, err
				}
				if t, err = l.extent(ctx, h); err != nil {
					return nil, err
				}
				cache[id] = t
			}
			out[pos] = append(out[pos], t)
		}
	}
	return out, nil
}

// LocationsOfType lists the distinct positions covered by a tag type in
// ascending order. A link type covers the positions of its argument extents.
// Positions covered by any excluded type are left out.
func (g *Graph) LocationsOfType(ctx context.Context, tagTypeID types.TagTypeID, excluding ...types.TagTypeID) ([]int, error) {
	locs, err := g.locationsOf(ctx, tagTypeID)
	if err != nil {
		return nil, err
	}
	if len(excluding) == 0 {
		return locs, nil
	}

	excluded := make(map[int]struct{})
	for _, ex := range excluding {
		exLocs, err := g.locationsOf(ctx, ex)
		if err != nil {
			return nil, err
		}
		for _, pos := range exLocs {
			excluded[pos] = struct{}{}
		}
	}
	return slices.DeleteFunc(locs, func(pos int) bool {
		_, ok := excluded[pos]
		return ok
	}), nil
}

func (g *Graph) locationsOf(ctx context.Context, tagTypeID types.TagTypeID) ([]int, error) {
	tt, err := g.reg.TagType(ctx, tagTypeID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT DISTINCT c.location FROM char_index c
		JOIN tags t ON t.id = c.tag_id
		WHERE t.tag_type_id = ?
		ORDER BY c.location`
	if tt.IsLink {
		query = `
			SELECT DISTINCT c.location FROM char_index c
			JOIN arguments a ON a.extent_id = c.tag_id
			JOIN tags l ON l.id = a.link_id
			WHERE l.tag_type_id = ?
			ORDER BY c.location`
	}

	rows, err := g.q.QueryContext(ctx, query, tt.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query locations of %s", tt.Name)
	}
	defer rows.Close()

	out := []int{}
	for rows.Next() {
		var pos int
		if err := rows.Scan(&pos); err != nil {
			return nil, errors.Wrap(err, "failed to scan location")
		}
		out = append(out, pos)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate locations")
}

// CountByType counts tags per type name, including types with no tags
func (g *Graph) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := g.q.QueryContext(ctx, `
		SELECT tt.name, COUNT(t.id) FROM tag_types tt
		LEFT JOIN tags t ON t.tag_type_id = tt.id
		GROUP BY tt.id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count tags")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan tag count")
		}
		out[name] = n
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate tag counts")
}

func (g *Graph) extentsByID(ctx context.Context, ids []string) ([]*types.ExtentTag, error) {
	hs, err := g.headersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	return g.newLoader().extents(ctx, hs)
}

func groupByType(tags []*types.ExtentTag) map[string][]*types.ExtentTag {
	out := make(map[string][]*types.ExtentTag)
	for _, t := range tags {
		out[t.Type.Name] = append(out[t.Type.Name], t)
	}
	return out
}
