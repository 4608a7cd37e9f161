package taggraph

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/errors"
	tstest "github.com/teranos/tagstore/internal/testing"
	"github.com/teranos/tagstore/logger"
)

type fixture struct {
	g     *Graph
	event types.TagType
	timex types.TagType
	note  types.TagType
	link  types.TagType
	from  types.ArgumentType
	to    types.ArgumentType
	tense types.AttributeType
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	g := New(tstest.CreateTestDB(t), zaptest.NewLogger(t).Sugar()).WithSource("doc.txt")
	reg := g.Registry()

	f := &fixture{g: g}
	var err error
	f.event, err = reg.DefineTagType(ctx, "EVENT", "E", false)
	require.NoError(t, err)
	f.timex, err = reg.DefineTagType(ctx, "TIMEX", "T", false)
	require.NoError(t, err)
	f.note, err = reg.DefineTagType(ctx, "NOTE", "N", false)
	require.NoError(t, err)
	require.NoError(t, reg.SetNonConsuming(ctx, f.note.ID, true))
	f.note.NonConsuming = true
	f.link, err = reg.DefineTagType(ctx, "LINK", "L", true)
	require.NoError(t, err)
	f.from, err = reg.DefineArgumentType(ctx, f.link.ID, "FROM")
	require.NoError(t, err)
	f.to, err = reg.DefineArgumentType(ctx, f.link.ID, "TO")
	require.NoError(t, err)
	f.tense, err = reg.DefineAttributeType(ctx, f.event.ID, "tense")
	require.NoError(t, err)
	require.NoError(t, reg.SetValueSet(ctx, f.tense.ID, []string{"PAST", "PRESENT"}))
	return f
}

func (f *fixture) extent(t *testing.T, id string, tt types.TagType, sp ...types.Span) *types.ExtentTag {
	t.Helper()
	tag, err := f.g.CreateExtentTag(context.Background(), id, tt, "", sp)
	require.NoError(t, err)
	return tag
}

func ids[T types.Tag](tags []T) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.TagID())
	}
	return out
}

func TestCreateExtentTag(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tag, err := f.g.CreateExtentTag(ctx, "", f.event, "ran", []types.Span{{Start: 5, End: 8}, {Start: 0, End: 3}})
	require.NoError(t, err)
	assert.Equal(t, "E1", tag.ID)
	assert.Equal(t, "doc.txt", tag.Source)
	assert.Equal(t, []types.Span{{Start: 0, End: 3}, {Start: 5, End: 8}}, tag.Spans)

	loaded, err := f.g.ExtentTag(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, tag.Spans, loaded.Spans)
	assert.Equal(t, "ran", loaded.Text)
	assert.Equal(t, "EVENT", loaded.Type.Name)

	// Adjacent spans stay distinct
	adj, err := f.g.CreateExtentTag(ctx, "", f.event, "", []types.Span{{Start: 10, End: 12}, {Start: 12, End: 14}})
	require.NoError(t, err)
	assert.Len(t, adj.Spans, 2)
}

func TestCreateExtentTagErrors(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tests := []struct {
		name  string
		tt    types.TagType
		spans []types.Span
		want  error
	}{
		{"link type", f.link, []types.Span{{Start: 0, End: 1}}, errors.ErrTagKindMismatch},
		{"no spans", f.event, nil, errors.ErrInvalidSpan},
		{"reversed", f.event, []types.Span{{Start: 3, End: 1}}, errors.ErrInvalidSpan},
		{"empty span", f.event, []types.Span{{Start: 2, End: 2}}, errors.ErrInvalidSpan},
		{"overlap", f.event, []types.Span{{Start: 0, End: 3}, {Start: 2, End: 5}}, errors.ErrInvalidSpan},
		{"sentinel on consuming", f.event, []types.Span{types.NCSpan}, errors.ErrInvalidSpan},
		{"sentinel mixed", f.note, []types.Span{types.NCSpan, {Start: 0, End: 1}}, errors.ErrInvalidSpan},
		{"unknown type", types.TagType{ID: 99}, []types.Span{{Start: 0, End: 1}}, errors.ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.g.CreateExtentTag(ctx, "", tt.tt, "", tt.spans)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	// Nothing was registered by the failed attempts
	exists, err := f.g.IDExists(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNonConsumingTag(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	tag, err := f.g.CreateExtentTag(ctx, "", f.note, "", nil)
	require.NoError(t, err)
	assert.True(t, tag.IsNonConsuming())

	at, err := f.g.TagsAt(ctx, types.NCPosition)
	require.NoError(t, err)
	assert.Empty(t, at)

	sp, err := f.g.SpansOf(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.Span{types.NCSpan}, sp)

	all, err := f.g.ExtentTagsByType(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all["NOTE"], 1)

	consuming, err := f.g.ExtentTagsByType(ctx, true)
	require.NoError(t, err)
	assert.NotContains(t, consuming, "NOTE")
}

func TestCreateLinkTag(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.extent(t, "", f.event, types.Span{Start: 0, End: 3})
	f.extent(t, "", f.timex, types.Span{Start: 4, End: 8})

	link, err := f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{
		{Type: f.from, Target: "E1"},
		{Type: f.to, Target: "T1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "L1", link.ID)
	assert.Equal(t, []string{"E1", "T1"}, link.ArgumentTagIDs())
	target, ok := link.Argument("TO")
	assert.True(t, ok)
	assert.Equal(t, "T1", target)

	_, err = f.g.CreateLinkTag(ctx, "", f.event, nil)
	assert.True(t, errors.Is(err, errors.ErrTagKindMismatch))

	_, err = f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: f.from, Target: "E9"}})
	assert.True(t, errors.Is(err, errors.ErrDanglingReference))

	_, err = f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: f.from, Target: "L1"}})
	assert.True(t, errors.Is(err, errors.ErrDanglingReference))

	// Argument type of another link type
	other, err := f.g.Registry().DefineTagType(ctx, "SLINK", "S", true)
	require.NoError(t, err)
	via, err := f.g.Registry().DefineArgumentType(ctx, other.ID, "VIA")
	require.NoError(t, err)
	_, err = f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: via, Target: "E1"}})
	assert.True(t, errors.Is(err, errors.ErrUnknownArgumentType))
}

func TestCreateLinkTagRejectsRepeatedArgument(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.extent(t, "", f.event, types.Span{Start: 0, End: 3})
	f.extent(t, "", f.timex, types.Span{Start: 4, End: 8})

	_, err := f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{
		{Type: f.from, Target: "E1"},
		{Type: f.from, Target: "T1"},
	})
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = f.g.LinkTag(ctx, "L1")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSetNonConsumingGuardsSentinelTags(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	reg := f.g.Registry()

	_, err := f.g.CreateExtentTag(ctx, "", f.note, "", nil)
	require.NoError(t, err)

	err = reg.SetNonConsuming(ctx, f.note.ID, false)
	assert.True(t, errors.Is(err, errors.ErrInvalidSpan))
	note, err := reg.TagType(ctx, f.note.ID)
	require.NoError(t, err)
	assert.True(t, note.NonConsuming)

	// Real spans survive either direction
	f.extent(t, "", f.event, types.Span{Start: 0, End: 3})
	require.NoError(t, reg.SetNonConsuming(ctx, f.event.ID, true))
	require.NoError(t, reg.SetNonConsuming(ctx, f.event.ID, false))

	_, err = f.g.RemoveTag(ctx, "N1", false)
	require.NoError(t, err)
	require.NoError(t, reg.SetNonConsuming(ctx, f.note.ID, false))
}

func TestSetValueSetGuardsStoredValues(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	reg := f.g.Registry()

	f.extent(t, "", f.event, types.Span{Start: 0, End: 3})
	require.NoError(t, f.g.AddAttribute(ctx, "E1", f.tense, "PAST"))

	err := reg.SetValueSet(ctx, f.tense.ID, []string{"PRESENT", "FUTURE"})
	assert.True(t, errors.Is(err, errors.ErrInvalidAttributeValue))
	at, err := reg.AttributeType(ctx, f.tense.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"PAST", "PRESENT"}, at.ValueSet)

	require.NoError(t, reg.SetValueSet(ctx, f.tense.ID, []string{"PAST", "FUTURE"}))
	require.NoError(t, reg.SetValueSet(ctx, f.tense.ID, nil))
}

func TestAddAttribute(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.extent(t, "", f.event, types.Span{Start: 0, End: 3})
	f.extent(t, "", f.timex, types.Span{Start: 4, End: 8})

	require.NoError(t, f.g.AddAttribute(ctx, "E1", f.tense, "PAST"))
	require.NoError(t, f.g.AddAttribute(ctx, "E1", f.tense, "PRESENT"))

	tag, err := f.g.Tag(ctx, "E1")
	require.NoError(t, err)
	v, ok := tag.AttributeValue("tense")
	assert.True(t, ok)
	assert.Equal(t, "PRESENT", v)
	assert.Len(t, tag.AttributeList(), 1)

	err = f.g.AddAttribute(ctx, "E1", f.tense, "FUTURE")
	assert.True(t, errors.Is(err, errors.ErrInvalidAttributeValue))

	err = f.g.AddAttribute(ctx, "T1", f.tense, "PAST")
	assert.True(t, errors.Is(err, errors.ErrUnknownType))

	err = f.g.AddAttribute(ctx, "E7", f.tense, "PAST")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestAddArgumentRebinds(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.extent(t, "", f.event, types.Span{Start: 0, End: 3})
	f.extent(t, "", f.event, types.Span{Start: 4, End: 6})
	_, err := f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: f.from, Target: "E1"}})
	require.NoError(t, err)

	require.NoError(t, f.g.AddArgument(ctx, "L1", f.to, "E2"))
	require.NoError(t, f.g.AddArgument(ctx, "L1", f.from, "E2"))

	link, err := f.g.LinkTag(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, []string{"E2", "E2"}, link.ArgumentTagIDs())

	refs, err := f.g.LinksReferencing(ctx, "E1")
	require.NoError(t, err)
	assert.Empty(t, refs)

	err = f.g.AddArgument(ctx, "E1", f.to, "E2")
	assert.True(t, errors.Is(err, errors.ErrTagKindMismatch))

	err = f.g.AddArgument(ctx, "L1", f.to, "nope")
	assert.True(t, errors.Is(err, errors.ErrDanglingReference))
}

func TestRemoveTag(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.extent(t, "", f.event, types.Span{Start: 0, End: 3})
	f.extent(t, "", f.event, types.Span{Start: 4, End: 6})
	_, err := f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: f.from, Target: "E1"}, {Type: f.to, Target: "E2"}})
	require.NoError(t, err)
	_, err = f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: f.from, Target: "E1"}})
	require.NoError(t, err)

	_, err = f.g.RemoveTag(ctx, "E1", false)
	assert.True(t, errors.Is(err, errors.ErrTagInUse))
	assert.NotEmpty(t, errors.GetAllHints(err))

	removed, err := f.g.RemoveTag(ctx, "E1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "L2", "E1"}, removed)

	for _, id := range removed {
		exists, err := f.g.IDExists(ctx, id)
		require.NoError(t, err)
		assert.False(t, exists, id)
	}

	at, err := f.g.TagsAt(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, at)

	// E2 lost its only link and is free to go
	refs, err := f.g.LinksReferencing(ctx, "E2")
	require.NoError(t, err)
	assert.Empty(t, refs)
	_, err = f.g.RemoveTag(ctx, "E2", false)
	require.NoError(t, err)

	_, err = f.g.RemoveTag(ctx, "E2", false)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLinksReferencing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.extent(t, "", f.event, types.Span{Start: 0, End: 3})
	f.extent(t, "", f.event, types.Span{Start: 4, End: 6})
	slink, err := f.g.Registry().DefineTagType(ctx, "SLINK", "S", true)
	require.NoError(t, err)
	subj, err := f.g.Registry().DefineArgumentType(ctx, slink.ID, "SUBJ")
	require.NoError(t, err)

	_, err = f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: f.from, Target: "E1"}, {Type: f.to, Target: "E1"}})
	require.NoError(t, err)
	_, err = f.g.CreateLinkTag(ctx, "", slink, []types.Binding{{Type: subj, Target: "E1"}})
	require.NoError(t, err)
	_, err = f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: f.from, Target: "E2"}})
	require.NoError(t, err)

	refs, err := f.g.LinksReferencing(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, []string{"L1"}, ids(refs["LINK"]))
	assert.Equal(t, []string{"S1"}, ids(refs["SLINK"]))

	_, err = f.g.LinksReferencing(ctx, "L1")
	assert.True(t, errors.Is(err, errors.ErrTagKindMismatch))
}

func TestLocationsOfType(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.extent(t, "", f.event, types.Span{Start: 0, End: 3}, types.Span{Start: 6, End: 8})
	f.extent(t, "", f.timex, types.Span{Start: 2, End: 5})
	f.extent(t, "", f.note)
	_, err := f.g.CreateLinkTag(ctx, "", f.link, []types.Binding{{Type: f.from, Target: "T1"}})
	require.NoError(t, err)

	locs, err := f.g.LocationsOfType(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 6, 7}, locs)

	locs, err = f.g.LocationsOfType(ctx, f.event.ID, f.timex.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 6, 7}, locs)

	locs, err = f.g.LocationsOfType(ctx, f.link.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, locs)

	locs, err = f.g.LocationsOfType(ctx, f.note.ID)
	require.NoError(t, err)
	assert.Empty(t, locs)

	_, err = f.g.LocationsOfType(ctx, 404)
	assert.True(t, errors.Is(err, errors.ErrUnknownType))
}

func TestGroupedQueries(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	f.extent(t, "", f.event, types.Span{Start: 0, End: 4})
	f.extent(t, "", f.timex, types.Span{Start: 2, End: 6})
	f.extent(t, "", f.event, types.Span{Start: 3, End: 5})

	at, err := f.g.TagsByTypeAt(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "E2"}, ids(at["EVENT"]))
	assert.Equal(t, []string{"T1"}, ids(at["TIMEX"]))

	in, err := f.g.TagsByTypeIn(ctx, []types.Span{{Start: 5, End: 6}})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"TIMEX": {"T1"}}, map[string][]string{"TIMEX": ids(in["TIMEX"])})
	assert.Len(t, in, 1)

	counts, err := f.g.CountByType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"EVENT": 2, "TIMEX": 1, "NOTE": 0, "LINK": 0}, counts)

	tt, err := f.g.TagTypeOf(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "TIMEX", tt.Name)

	ofType, err := f.g.TagsOfType(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "E2"}, ids(ofType))
}

// TestTagsAtMatchesBruteForce checks the index against a scan of every tag's spans
func TestTagsAtMatchesBruteForce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	rng := rand.New(rand.NewSource(7))

	const docLen = 60
	type placed struct {
		id    string
		spans []types.Span
	}
	var all []placed
	for i := 0; i < 25; i++ {
		var sp []types.Span
		pos := rng.Intn(10)
		for j := 0; j < 1+rng.Intn(3) && pos < docLen-1; j++ {
			end := pos + 1 + rng.Intn(6)
			if end > docLen {
				end = docLen
			}
			sp = append(sp, types.Span{Start: pos, End: end})
			pos = end + rng.Intn(8)
		}
		tt := f.event
		if i%3 == 0 {
			tt = f.timex
		}
		tag := f.extent(t, "", tt, sp...)
		all = append(all, placed{id: tag.ID, spans: tag.Spans})
	}

	// Remove a few to exercise unindexing
	for _, victim := range []int{3, 11, 19} {
		_, err := f.g.RemoveTag(ctx, all[victim].id, false)
		require.NoError(t, err)
	}
	all = append(append(append(all[:3:3], all[4:11]...), all[12:19]...), all[20:]...)

	locs, err := f.g.LocationsWithTags(ctx)
	require.NoError(t, err)

	for pos := -1; pos <= docLen; pos++ {
		var want []string
		for _, p := range all {
			for _, sp := range p.spans {
				if sp.Contains(pos) {
					want = append(want, p.id)
					break
				}
			}
		}

		got, err := f.g.TagsAt(ctx, pos)
		require.NoError(t, err)
		assert.Equal(t, sorted(want), sorted(ids(got)), "position %d", pos)
		assert.Equal(t, sorted(want), sorted(ids(locs[pos])), "locations at %d", pos)
	}
}

func sorted(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

func TestLogLinesUseStandardFields(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)
	g := New(tstest.CreateTestDB(t), zap.New(core).Sugar()).WithSource("doc.txt")

	event, err := g.Registry().DefineTagType(ctx, "EVENT", "E", false)
	require.NoError(t, err)
	_, err = g.CreateExtentTag(ctx, "", event, "ran", []types.Span{{Start: 0, End: 3}})
	require.NoError(t, err)
	_, err = g.RemoveTag(ctx, "E1", false)
	require.NoError(t, err)

	expect := map[string][]string{
		"Defined tag type":   {logger.FieldTagType, logger.FieldPrefix, logger.FieldIsLink},
		"Allocated id":       {logger.FieldTagID, logger.FieldTagType},
		"Indexed tag":        {logger.FieldTagID, logger.FieldCount},
		"Created extent tag": {logger.FieldTagID, logger.FieldTagType, logger.FieldSpans},
		"Removed tag":        {logger.FieldTagID, logger.FieldTagKind, logger.FieldCascade},
	}
	for msg, keys := range expect {
		entries := logs.FilterMessage(msg).All()
		require.NotEmpty(t, entries, msg)
		fields := entries[0].ContextMap()
		for _, key := range keys {
			assert.Contains(t, fields, key, msg)
		}
	}
}
