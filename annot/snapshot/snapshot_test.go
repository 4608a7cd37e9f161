package snapshot

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/tagstore/annot/store"
	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
	tstest "github.com/teranos/tagstore/internal/testing"
	"github.com/teranos/tagstore/internal/util"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(tstest.CreateTestDB(t), store.Options{Path: ":memory:", Logger: zaptest.NewLogger(t).Sugar()})
}

func populate(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	event, err := st.DefineTagType(ctx, "EVENT", "E", false)
	require.NoError(t, err)
	note, err := st.DefineTagType(ctx, "NOTE", "N", false)
	require.NoError(t, err)
	require.NoError(t, st.SetNonConsuming(ctx, note.ID, true))
	link, err := st.DefineTagType(ctx, "TLINK", "L", true)
	require.NoError(t, err)

	class, err := st.DefineAttributeType(ctx, event.ID, "class")
	require.NoError(t, err)
	require.NoError(t, st.SetValueSet(ctx, class.ID, []string{"OCCURRENCE", "STATE"}))
	require.NoError(t, st.SetDefaultValue(ctx, class.ID, util.Ptr("OCCURRENCE")))
	require.NoError(t, st.SetAttributeRequired(ctx, class.ID, true))
	never, err := st.DefineAttributeType(ctx, event.ID, "never")
	require.NoError(t, err)
	require.NoError(t, st.SetValueSet(ctx, never.ID, []string{}))
	ref, err := st.DefineAttributeType(ctx, link.ID, "ref")
	require.NoError(t, err)
	require.NoError(t, st.SetIDRef(ctx, ref.ID, true))

	from, err := st.DefineArgumentType(ctx, link.ID, "FROM")
	require.NoError(t, err)
	require.NoError(t, st.SetArgumentRequired(ctx, from.ID, true))
	_, err = st.DefineArgumentType(ctx, link.ID, "TO")
	require.NoError(t, err)

	require.NoError(t, st.SetWorkingFile(ctx, "wsj_0001.txt"))
	require.NoError(t, st.SetSchemaName(ctx, "timeml"))

	_, err = st.CreateTag(ctx, store.TagRequest{Type: "EVENT", Text: "ran off", Spans: []types.Span{{Start: 0, End: 3}, {Start: 4, End: 7}}, Attributes: map[string]string{"class": "STATE"}})
	require.NoError(t, err)
	_, err = st.CreateTag(ctx, store.TagRequest{ID: "E7", Type: "EVENT", Text: "fell", Spans: []types.Span{{Start: 10, End: 14}}, Source: util.Ptr("other.txt")})
	require.NoError(t, err)
	_, err = st.CreateTag(ctx, store.TagRequest{Type: "NOTE", Text: "check tense"})
	require.NoError(t, err)
	_, err = st.CreateTag(ctx, store.TagRequest{Type: "TLINK", Arguments: map[string]string{"FROM": "E1", "TO": "E7"}, Attributes: map[string]string{"ref": "E99"}})
	require.NoError(t, err)
	_, err = st.CreateTag(ctx, store.TagRequest{Type: "TLINK", Arguments: map[string]string{"TO": "E1"}})
	require.NoError(t, err)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	populate(t, src)

	snap, err := Export(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, snap.Format)
	assert.Equal(t, src.SessionID(), snap.SessionID)
	assert.Len(t, snap.Schema, 3)
	assert.Len(t, snap.Extents, 3)
	assert.Len(t, snap.Links, 2)
	assert.Equal(t, "-1~-1", snap.Extents[2].Spans)
	// E7 has no class, L1 refers to E99, L2 lacks FROM
	assert.Len(t, snap.Problems, 3)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, snap))
	decoded, err := Read(&buf)
	require.NoError(t, err)

	dst := newStore(t)
	require.NoError(t, Import(ctx, dst, decoded))

	again, err := Export(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, snap.Schema, again.Schema)
	assert.Equal(t, snap.Extents, again.Extents)
	assert.Equal(t, snap.Links, again.Links)
	assert.Equal(t, snap.Problems, again.Problems)
	assert.Equal(t, "wsj_0001.txt", again.WorkingFile)
	assert.Equal(t, "timeml", again.SchemaName)

	// The empty value set survived as "admits nothing"
	event, err := dst.LookupByName(ctx, "EVENT")
	require.NoError(t, err)
	never, err := dst.AttributeTypeByName(ctx, event.ID, "never")
	require.NoError(t, err)
	assert.True(t, never.HasValueSet())
	assert.Empty(t, never.ValueSet)

	// Counters were raised by the imported ids
	tag, err := dst.CreateExtentTag(ctx, "", event, "", []types.Span{{Start: 20, End: 21}})
	require.NoError(t, err)
	assert.Equal(t, "E8", tag.ID)
}

func TestReadRejectsFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
		ok     bool
	}{
		{"current", "1.0.0", true},
		{"minor bump", "1.3.0", true},
		{"major bump", "2.0.0", false},
		{"garbage", "latest", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `{"format": "` + tt.format + `", "schema": [], "extents": [], "links": []}`
			_, err := Read(strings.NewReader(doc))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
		})
	}

	_, err := Read(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestImportStopsOnConflict(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	populate(t, src)
	snap, err := Export(ctx, src)
	require.NoError(t, err)

	// Importing into a store that already has the schema collides on names
	err = Import(ctx, src, snap)
	assert.True(t, errors.Is(err, errors.ErrDuplicateName))
}

func TestImportIsAtomic(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	populate(t, src)
	snap, err := Export(ctx, src)
	require.NoError(t, err)

	// The last link points nowhere, so the import fails after the schema
	// and every extent went in
	snap.Links[len(snap.Links)-1].Arguments = map[string]string{"TO": "E42"}

	dst := newStore(t)
	err = Import(ctx, dst, snap)
	assert.True(t, errors.Is(err, errors.ErrDanglingReference), "got %v", err)

	tts, err := dst.TagTypes(ctx, true, true)
	require.NoError(t, err)
	assert.Empty(t, tts)
	all, err := dst.AllTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	wf, err := dst.WorkingFile(ctx)
	require.NoError(t, err)
	assert.Empty(t, wf)

	// The store stays usable
	_, err = dst.DefineTagType(ctx, "EVENT", "E", false)
	assert.NoError(t, err)
}

func TestImportKeepsEmptySource(t *testing.T) {
	ctx := context.Background()
	src := newStore(t)
	event, err := src.DefineTagType(ctx, "EVENT", "E", false)
	require.NoError(t, err)
	_, err = src.CreateExtentTag(ctx, "", event, "ran", []types.Span{{Start: 0, End: 3}})
	require.NoError(t, err)
	require.NoError(t, src.SetWorkingFile(ctx, "wsj_0001.txt"))
	_, err = src.CreateExtentTag(ctx, "", event, "fell", []types.Span{{Start: 4, End: 8}})
	require.NoError(t, err)

	snap, err := Export(ctx, src)
	require.NoError(t, err)
	require.Len(t, snap.Extents, 2)
	assert.Equal(t, "", snap.Extents[0].Source)
	assert.Equal(t, "wsj_0001.txt", snap.Extents[1].Source)

	dst := newStore(t)
	require.NoError(t, Import(ctx, dst, snap))
	again, err := Export(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, snap.Extents, again.Extents)
}
