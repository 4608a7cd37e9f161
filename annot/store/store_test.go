package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/tagstore/annot/types"
	"github.com/teranos/tagstore/db"
	"github.com/teranos/tagstore/errors"
	tstest "github.com/teranos/tagstore/internal/testing"
	"github.com/teranos/tagstore/internal/util"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	opts.Logger = zaptest.NewLogger(t).Sugar()
	st := New(tstest.CreateTestDB(t), opts)
	return st
}

// eventLinkSchema defines EVENT (prefix E) and LINK (prefix L) with FROM and TO
type eventLinkSchema struct {
	event, link types.TagType
	from, to    types.ArgumentType
}

func defineEventLink(t *testing.T, st *Store) eventLinkSchema {
	t.Helper()
	ctx := context.Background()
	var s eventLinkSchema
	var err error
	s.event, err = st.DefineTagType(ctx, "EVENT", "E", false)
	require.NoError(t, err)
	s.link, err = st.DefineTagType(ctx, "LINK", "L", true)
	require.NoError(t, err)
	s.from, err = st.DefineArgumentType(ctx, s.link.ID, "FROM")
	require.NoError(t, err)
	s.to, err = st.DefineArgumentType(ctx, s.link.ID, "TO")
	require.NoError(t, err)
	return s
}

func TestEventLinkScenario(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath})
	s := defineEventLink(t, st)

	e1, err := st.CreateExtentTag(ctx, "", s.event, "ran", []types.Span{{Start: 0, End: 3}})
	require.NoError(t, err)
	assert.Equal(t, "E1", e1.ID)

	_, err = st.CreateExtentTag(ctx, "E5", s.event, "fell", []types.Span{{Start: 10, End: 14}})
	require.NoError(t, err)

	e6, err := st.CreateExtentTag(ctx, "", s.event, "rose", []types.Span{{Start: 20, End: 24}})
	require.NoError(t, err)
	assert.Equal(t, "E6", e6.ID)

	_, err = st.CreateExtentTag(ctx, "E5", s.event, "", []types.Span{{Start: 30, End: 31}})
	assert.True(t, errors.Is(err, errors.ErrDuplicateID))

	l1, err := st.CreateLinkTag(ctx, "", s.link, []types.Binding{
		{Type: s.from, Target: "E1"},
		{Type: s.to, Target: "E5"},
	})
	require.NoError(t, err)
	assert.Equal(t, "L1", l1.ID)

	refs, err := st.LinksReferencing(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, refs["LINK"], 1)
	assert.Equal(t, "L1", refs["LINK"][0].ID)

	at, err := st.TagsAt(ctx, 1)
	require.NoError(t, err)
	require.Len(t, at, 1)
	assert.Equal(t, "E1", at[0].ID)

	_, err = st.RemoveTag(ctx, "E1", false)
	assert.True(t, errors.Is(err, errors.ErrTagInUse))

	// The failed removal left everything in place
	exists, err := st.IDExists(ctx, "L1")
	require.NoError(t, err)
	assert.True(t, exists)

	removed, err := st.RemoveTag(ctx, "E1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"L1", "E1"}, removed)

	at, err = st.TagsAt(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, at)

	refs, err = st.LinksReferencing(ctx, "E5")
	require.NoError(t, err)
	assert.Empty(t, refs)

	// Ids are never reissued after release
	next, err := st.CreateExtentTag(ctx, "", s.event, "", []types.Span{{Start: 40, End: 41}})
	require.NoError(t, err)
	assert.Equal(t, "E7", next.ID)
}

func TestCreateTagIsAtomic(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath})
	s := defineEventLink(t, st)

	polarity, err := st.DefineAttributeType(ctx, s.event.ID, "polarity")
	require.NoError(t, err)
	require.NoError(t, st.SetValueSet(ctx, polarity.ID, []string{"POS", "NEG"}))

	_, err = st.CreateTag(ctx, TagRequest{
		Type:       "EVENT",
		Text:       "ran",
		Spans:      []types.Span{{Start: 0, End: 3}},
		Attributes: map[string]string{"polarity": "MAYBE"},
	})
	assert.True(t, errors.Is(err, errors.ErrInvalidAttributeValue))

	// Neither the tag nor its id survived
	exists, err := st.IDExists(ctx, "E1")
	require.NoError(t, err)
	assert.False(t, exists)
	at, err := st.TagsAt(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, at)

	tag, err := st.CreateTag(ctx, TagRequest{
		Type:       "EVENT",
		Text:       "ran",
		Spans:      []types.Span{{Start: 0, End: 3}},
		Attributes: map[string]string{"polarity": "NEG"},
	})
	require.NoError(t, err)
	assert.Equal(t, "E1", tag.TagID())
	v, _ := tag.AttributeValue("polarity")
	assert.Equal(t, "NEG", v)

	link, err := st.CreateTag(ctx, TagRequest{
		ID:        "L10",
		Type:      "LINK",
		Arguments: map[string]string{"FROM": "E1", "TO": "E1"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.KindLink, link.Kind())
	assert.Equal(t, []string{"E1", "E1"}, link.(*types.LinkTag).ArgumentTagIDs())

	_, err = st.CreateTag(ctx, TagRequest{Type: "LINK", Arguments: map[string]string{"VIA": "E1"}})
	assert.True(t, errors.Is(err, errors.ErrUnknownArgumentType))

	_, err = st.CreateTag(ctx, TagRequest{Type: "EVENT", Spans: []types.Span{{Start: 5, End: 6}}, Arguments: map[string]string{"FROM": "E1"}})
	assert.True(t, errors.Is(err, errors.ErrTagKindMismatch))

	_, err = st.CreateTag(ctx, TagRequest{Type: "NOPE"})
	assert.True(t, errors.Is(err, errors.ErrUnknownType))
}

func TestFillDefaults(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath, FillDefaults: true})
	s := defineEventLink(t, st)

	tense, err := st.DefineAttributeType(ctx, s.event.ID, "tense")
	require.NoError(t, err)
	require.NoError(t, st.SetDefaultValue(ctx, tense.ID, util.Ptr("PAST")))

	e1, err := st.CreateExtentTag(ctx, "", s.event, "", []types.Span{{Start: 0, End: 1}})
	require.NoError(t, err)
	v, ok := e1.AttributeValue("tense")
	assert.True(t, ok)
	assert.Equal(t, "PAST", v)

	e2, err := st.CreateTag(ctx, TagRequest{Type: "EVENT", Spans: []types.Span{{Start: 2, End: 3}}, Attributes: map[string]string{"tense": "FUTURE"}})
	require.NoError(t, err)
	v, _ = e2.AttributeValue("tense")
	assert.Equal(t, "FUTURE", v)
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath})
	s := defineEventLink(t, st)

	anchor, err := st.DefineAttributeType(ctx, s.event.ID, "anchor")
	require.NoError(t, err)
	require.NoError(t, st.SetIDRef(ctx, anchor.ID, true))
	class, err := st.DefineAttributeType(ctx, s.event.ID, "class")
	require.NoError(t, err)
	require.NoError(t, st.SetAttributeRequired(ctx, class.ID, true))
	require.NoError(t, st.SetArgumentRequired(ctx, s.to.ID, true))

	_, err = st.CreateTag(ctx, TagRequest{Type: "EVENT", Spans: []types.Span{{Start: 0, End: 1}}, Attributes: map[string]string{"anchor": "E9", "class": "OCCURRENCE"}})
	require.NoError(t, err)
	_, err = st.CreateTag(ctx, TagRequest{Type: "EVENT", Spans: []types.Span{{Start: 2, End: 3}}, Attributes: map[string]string{"anchor": "E1"}})
	require.NoError(t, err)
	_, err = st.CreateTag(ctx, TagRequest{Type: "LINK", Arguments: map[string]string{"FROM": "E1"}})
	require.NoError(t, err)

	problems, err := st.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Problem{
		{TagID: "E1", Kind: ProblemUnresolvedIDRef, Name: "anchor", Value: "E9"},
		{TagID: "E2", Kind: ProblemMissingAttribute, Name: "class"},
		{TagID: "L1", Kind: ProblemMissingArgument, Name: "TO"},
	}, problems)
	assert.Contains(t, problems[0].String(), "missing tag")

	// Registering the referenced id resolves the first problem
	_, err = st.CreateExtentTag(ctx, "E9", s.event, "", []types.Span{{Start: 5, End: 6}})
	require.NoError(t, err)
	problems, err = st.Validate(ctx)
	require.NoError(t, err)
	assert.Len(t, problems, 3) // E9 itself lacks class
	assert.Equal(t, ProblemMissingAttribute, problems[2].Kind)
}

func TestSessionMetadata(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath})
	s := defineEventLink(t, st)

	wf, err := st.WorkingFile(ctx)
	require.NoError(t, err)
	assert.Empty(t, wf)

	require.NoError(t, st.SetWorkingFile(ctx, "corpus/wsj_0001.txt"))
	require.NoError(t, st.SetSchemaName(ctx, "timeml"))

	tag, err := st.CreateExtentTag(ctx, "", s.event, "", []types.Span{{Start: 0, End: 1}})
	require.NoError(t, err)
	assert.Equal(t, "corpus/wsj_0001.txt", tag.Source)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, st.SessionID(), stats.SessionID)
	assert.Equal(t, "corpus/wsj_0001.txt", stats.WorkingFile)
	assert.Equal(t, "timeml", stats.SchemaName)
	assert.Equal(t, 2, stats.TagTypes)
	assert.Equal(t, map[string]int{"EVENT": 1, "LINK": 0}, stats.TagsByType)
	assert.Equal(t, 1, stats.TotalTags)
	assert.Equal(t, 1, stats.IndexedPositions)
}

func TestSessionIDs(t *testing.T) {
	a := newTestStore(t, Options{Path: db.MemoryPath})
	b := newTestStore(t, Options{Path: db.MemoryPath})
	assert.NotEqual(t, a.SessionID(), b.SessionID())

	id, err := uuid.Parse(a.SessionID())
	require.NoError(t, err)

	raw, err := base58.Decode(a.ShortSessionID())
	require.NoError(t, err)
	assert.Equal(t, id[:], raw)
	assert.Less(t, len(a.ShortSessionID()), len(a.SessionID()))
}

func TestExplicitSourceWins(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath, Source: "loader"})
	s := defineEventLink(t, st)
	require.NoError(t, st.SetWorkingFile(ctx, "doc.txt"))

	tag, err := st.CreateExtentTag(ctx, "", s.event, "", []types.Span{{Start: 0, End: 1}})
	require.NoError(t, err)
	assert.Equal(t, "loader", tag.Source)
}

func TestRequestSourceOverrides(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath})
	defineEventLink(t, st)
	require.NoError(t, st.SetWorkingFile(ctx, "doc.txt"))

	unset, err := st.CreateTag(ctx, TagRequest{Type: "EVENT", Spans: []types.Span{{Start: 0, End: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", unset.(*types.ExtentTag).Source)

	empty, err := st.CreateTag(ctx, TagRequest{Type: "EVENT", Spans: []types.Span{{Start: 2, End: 3}}, Source: util.Ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "", empty.(*types.ExtentTag).Source)
}

func TestAtomic(t *testing.T) {
	ctx := context.Background()

	t.Run("failure rolls back every step", func(t *testing.T) {
		st := newTestStore(t, Options{Path: db.MemoryPath})
		err := st.Atomic(ctx, func(view *Store) error {
			s := defineEventLink(t, view)
			if _, err := view.CreateExtentTag(ctx, "", s.event, "", []types.Span{{Start: 0, End: 1}}); err != nil {
				return err
			}
			return errors.Mark(errors.ErrDuplicateID, "E1")
		})
		assert.True(t, errors.Is(err, errors.ErrDuplicateID))

		tts, err := st.TagTypes(ctx, true, true)
		require.NoError(t, err)
		assert.Empty(t, tts)
		all, err := st.AllTags(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("success commits and a failed step undoes only itself", func(t *testing.T) {
		st := newTestStore(t, Options{Path: db.MemoryPath})
		var view *Store
		err := st.Atomic(ctx, func(v *Store) error {
			view = v
			s := defineEventLink(t, v)
			_, err := v.CreateTag(ctx, TagRequest{Type: "EVENT", Spans: []types.Span{{Start: 0, End: 1}}, Attributes: map[string]string{"nope": "x"}})
			require.Error(t, err)
			_, err = v.CreateExtentTag(ctx, "", s.event, "", []types.Span{{Start: 0, End: 1}})
			return err
		})
		require.NoError(t, err)

		all, err := st.AllTags(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"E1"}, tagIDs(all))

		_, err = view.AllTags(ctx)
		assert.True(t, errors.Is(err, errors.ErrStoreClosed))
	})

	t.Run("views cannot destroy", func(t *testing.T) {
		st := newTestStore(t, Options{Path: db.MemoryPath})
		err := st.Atomic(ctx, func(view *Store) error {
			return view.Destroy(ctx)
		})
		assert.True(t, errors.IsInvalidRequestError(err))
		_, err = st.Stats(ctx)
		assert.NoError(t, err)
	})
}

func tagIDs(tags []types.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.TagID())
	}
	return out
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath})
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	_, err := st.DefineTagType(ctx, "EVENT", "E", false)
	assert.True(t, errors.Is(err, errors.ErrStoreClosed))
	_, err = st.TagsAt(ctx, 0)
	assert.True(t, errors.Is(err, errors.ErrStoreClosed))
	assert.False(t, errors.IsValidationError(err))
}

func TestOpenDestroy(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	st, err := Open(ctx, Options{Path: path, RemoveOnDestroy: true, Logger: zaptest.NewLogger(t).Sugar()})
	require.NoError(t, err)
	s := defineEventLink(t, st)
	_, err = st.CreateExtentTag(ctx, "", s.event, "", []types.Span{{Start: 0, End: 2}})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// Reopening keeps the data
	st, err = Open(ctx, Options{Path: path, RemoveOnDestroy: true, Logger: zaptest.NewLogger(t).Sugar()})
	require.NoError(t, err)
	exists, err := st.IDExists(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, st.Destroy(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = st.TagTypes(ctx, true, true)
	assert.True(t, errors.Is(err, errors.ErrStoreClosed))
	assert.True(t, errors.Is(st.Destroy(ctx), errors.ErrStoreClosed))
}

func TestResetOnOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	st, err := Open(ctx, Options{Path: path})
	require.NoError(t, err)
	defineEventLink(t, st)
	require.NoError(t, st.Close())

	st, err = Open(ctx, Options{Path: path, ResetOnOpen: true})
	require.NoError(t, err)
	defer st.Close()
	tts, err := st.TagTypes(ctx, true, true)
	require.NoError(t, err)
	assert.Empty(t, tts)

	_, err = Open(ctx, Options{})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, Options{Path: db.MemoryPath})
	s := defineEventLink(t, st)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				start := (w*10 + i) * 2
				_, err := st.CreateExtentTag(ctx, "", s.event, "", []types.Span{{Start: start, End: start + 1}})
				assert.NoError(t, err)
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, err := st.LocationsWithTags(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	tags, err := st.TagsOfType(ctx, s.event.ID)
	require.NoError(t, err)
	assert.Len(t, tags, 40)
}

func TestRollbackOnDriverFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	st := New(mockDB, Options{Path: db.MemoryPath, Source: "doc.txt", Logger: zaptest.NewLogger(t).Sugar()})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tag_types WHERE name = ").
		WithArgs("EVENT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "prefix", "is_link", "non_consuming"}))
	mock.ExpectExec("INSERT INTO tag_types").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = st.DefineTagType(context.Background(), "EVENT", "E", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.False(t, errors.IsValidationError(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	st := New(mockDB, Options{Path: db.MemoryPath, Source: "doc.txt", Logger: zaptest.NewLogger(t).Sugar()})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO session").
		WithArgs(KeySchemaName, "timeml").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err = st.SetSchemaName(context.Background(), "timeml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}
