package store

import (
	"context"

	"github.com/teranos/tagstore/annot/taggraph"
	"github.com/teranos/tagstore/annot/types"
)

// read runs fn under the read lock and returns its result
func read[T any](s *Store, op string, fn func(g *taggraph.Graph) (T, error)) (T, error) {
	var out T
	err := s.withRead(op, func(g *taggraph.Graph) error {
		var err error
		out, err = fn(g)
		return err
	})
	return out, err
}

func (s *Store) Tag(ctx context.Context, id string) (types.Tag, error) {
	return read(s, "tag", func(g *taggraph.Graph) (types.Tag, error) {
		return g.Tag(ctx, id)
	})
}

func (s *Store) ExtentTag(ctx context.Context, id string) (*types.ExtentTag, error) {
	return read(s, "extent tag", func(g *taggraph.Graph) (*types.ExtentTag, error) {
		return g.ExtentTag(ctx, id)
	})
}

func (s *Store) LinkTag(ctx context.Context, id string) (*types.LinkTag, error) {
	return read(s, "link tag", func(g *taggraph.Graph) (*types.LinkTag, error) {
		return g.LinkTag(ctx, id)
	})
}

// AllTags lists every tag in load order
func (s *Store) AllTags(ctx context.Context) ([]types.Tag, error) {
	return read(s, "all tags", func(g *taggraph.Graph) ([]types.Tag, error) {
		return g.AllTags(ctx)
	})
}

// TagsOfType lists the tags of one type in load order
func (s *Store) TagsOfType(ctx context.Context, tagTypeID types.TagTypeID) ([]types.Tag, error) {
	return read(s, "tags of type", func(g *taggraph.Graph) ([]types.Tag, error) {
		return g.TagsOfType(ctx, tagTypeID)
	})
}

// LinksReferencing groups the links arguing extentID by link type name
func (s *Store) LinksReferencing(ctx context.Context, extentID string) (map[string][]*types.LinkTag, error) {
	return read(s, "links referencing", func(g *taggraph.Graph) (map[string][]*types.LinkTag, error) {
		return g.LinksReferencing(ctx, extentID)
	})
}

// LocationsOfType lists the sorted positions covered by a type minus those
// covered by any excluded type
func (s *Store) LocationsOfType(ctx context.Context, tagTypeID types.TagTypeID, excluding ...types.TagTypeID) ([]int, error) {
	return read(s, "locations of type", func(g *taggraph.Graph) ([]int, error) {
		return g.LocationsOfType(ctx, tagTypeID, excluding...)
	})
}

// TagsAt lists the extent tags covering pos
func (s *Store) TagsAt(ctx context.Context, pos int) ([]*types.ExtentTag, error) {
	return read(s, "tags at", func(g *taggraph.Graph) ([]*types.ExtentTag, error) {
		return g.TagsAt(ctx, pos)
	})
}

func (s *Store) LocationsWithTags(ctx context.Context) (map[int][]*types.ExtentTag, error) {
	return read(s, "locations with tags", func(g *taggraph.Graph) (map[int][]*types.ExtentTag, error) {
		return g.LocationsWithTags(ctx)
	})
}

func (s *Store) TagsInRanges(ctx context.Context, ranges []types.Span) ([]*types.ExtentTag, error) {
	return read(s, "tags in ranges", func(g *taggraph.Graph) ([]*types.ExtentTag, error) {
		return g.TagsInRanges(ctx, ranges)
	})
}

func (s *Store) TagsByTypeAt(ctx context.Context, pos int) (map[string][]*types.ExtentTag, error) {
	return read(s, "tags by type at", func(g *taggraph.Graph) (map[string][]*types.ExtentTag, error) {
		return g.TagsByTypeAt(ctx, pos)
	})
}

func (s *Store) TagsByTypeIn(ctx context.Context, ranges []types.Span) (map[string][]*types.ExtentTag, error) {
	return read(s, "tags by type in", func(g *taggraph.Graph) (map[string][]*types.ExtentTag, error) {
		return g.TagsByTypeIn(ctx, ranges)
	})
}

func (s *Store) ExtentTagsByType(ctx context.Context, consumingOnly bool) (map[string][]*types.ExtentTag, error) {
	return read(s, "extent tags by type", func(g *taggraph.Graph) (map[string][]*types.ExtentTag, error) {
		return g.ExtentTagsByType(ctx, consumingOnly)
	})
}

func (s *Store) TagTypeOf(ctx context.Context, tagID string) (types.TagType, error) {
	return read(s, "tag type of", func(g *taggraph.Graph) (types.TagType, error) {
		return g.TagTypeOf(ctx, tagID)
	})
}

func (s *Store) SpansOf(ctx context.Context, tagID string) ([]types.Span, error) {
	return read(s, "spans of", func(g *taggraph.Graph) ([]types.Span, error) {
		return g.SpansOf(ctx, tagID)
	})
}

// IDExists reports whether id is registered to any tag
func (s *Store) IDExists(ctx context.Context, id string) (bool, error) {
	return read(s, "id exists", func(g *taggraph.Graph) (bool, error) {
		return g.IDExists(ctx, id)
	})
}
