package store

import (
	"context"

	"github.com/teranos/tagstore/annot/taggraph"
)

// Stats summarizes a session
type Stats struct {
	SessionID        string         `json:"session_id"`
	Path             string         `json:"path"`
	WorkingFile      string         `json:"working_file,omitempty"`
	SchemaName       string         `json:"schema_name,omitempty"`
	TagTypes         int            `json:"tag_types"`
	TagsByType       map[string]int `json:"tags_by_type"`
	TotalTags        int            `json:"total_tags"`
	IndexedPositions int            `json:"indexed_positions"`
}

// Stats counts tags per type and indexed positions
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	return read(s, "stats", func(g *taggraph.Graph) (Stats, error) {
		st := Stats{SessionID: s.sessionID, Path: s.opts.Path}

		var err error
		if st.WorkingFile, err = sessionValue(ctx, g.Querier(), KeyWorkingFile); err != nil {
			return st, err
		}
		if st.SchemaName, err = sessionValue(ctx, g.Querier(), KeySchemaName); err != nil {
			return st, err
		}
		if st.TagsByType, err = g.CountByType(ctx); err != nil {
			return st, err
		}
		st.TagTypes = len(st.TagsByType)
		for _, n := range st.TagsByType {
			st.TotalTags += n
		}
		if st.IndexedPositions, err = g.Index().Count(ctx); err != nil {
			return st, err
		}
		return st, nil
	})
}
