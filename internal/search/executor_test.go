package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/phonetic"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

func seededStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "fuzzy.db"), "fuzzy")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	_, err = s.InsertMany(ctx, []document.Document{
		{"_id": 1, "name": []any{map[string]any{"name": "Smith", "firstName": "John"}}},
		{"_id": 2, "name": []any{map[string]any{"name": "Jones", "firstName": "Mary"}}},
	})
	require.NoError(t, err)
	_, err = s.BulkAddToSet(ctx, "soundex", []store.UpdateRequest{
		{ID: 1, Codes: []string{"S530", "J500"}},
		{ID: 2, Codes: []string{"J520", "M600"}},
	})
	require.NoError(t, err)
	return s
}

func collectAll(t *testing.T, res *Result) []document.Document {
	t.Helper()
	var docs []document.Document
	for doc, err := range res.Documents(context.Background()) {
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	return docs
}

func TestSearch_SoundsLikeMatch(t *testing.T) {
	// Given: backfilled documents
	e, err := NewExecutor(seededStore(t))
	require.NoError(t, err)

	// When: searching for "Jon"
	res, err := e.Search(context.Background(), []string{"Jon"})
	require.NoError(t, err)
	docs := collectAll(t, res)

	// Then: John Smith is found
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0].ID().(interface{ String() string }).String())
	assert.Equal(t, []string{"J500"}, res.Codes)
}

func TestSearch_NoPhoneticMatch(t *testing.T) {
	e, err := NewExecutor(seededStore(t))
	require.NoError(t, err)

	res, err := e.Search(context.Background(), []string{"Zzyx"})
	require.NoError(t, err)

	assert.Empty(t, collectAll(t, res))
}

func TestSearch_AnyPredicateMatches(t *testing.T) {
	e, err := NewExecutor(seededStore(t))
	require.NoError(t, err)

	res, err := e.Search(context.Background(), []string{"Smyth", "Mari", "Smith"})
	require.NoError(t, err)

	assert.Len(t, collectAll(t, res), 2)
	assert.Equal(t, []string{"S530", "M600"}, res.Codes)
}

func TestSearch_AllPredicatesEmptyMatchesNothing(t *testing.T) {
	// Given: predicates without a single letter
	e, err := NewExecutor(seededStore(t))
	require.NoError(t, err)

	// When: searching
	res, err := e.Search(context.Background(), []string{"!!!", "", "42"})

	// Then: an empty result with a warning, not a failure
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Equal(t, apperrors.ErrCodeQueryEmpty, res.Warning.Code)
	assert.Equal(t, apperrors.SeverityWarning, res.Warning.Severity)
	assert.Empty(t, res.Codes)
	assert.Empty(t, collectAll(t, res))
}

func TestSearch_EmptyPredicatesAreDropped(t *testing.T) {
	e, err := NewExecutor(seededStore(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"J500"}, e.Encode([]string{"", "Jon", "---", "John"}))
}

func TestSearch_PredicatesAreEncodedWhole(t *testing.T) {
	e, err := NewExecutor(seededStore(t))
	require.NoError(t, err)

	// "John Smith" is one predicate: J525, not J500 + S530
	assert.Equal(t, []string{phonetic.Soundex("John Smith")}, e.Encode([]string{"John Smith"}))
}

func TestSearch_ResultIsSinglePass(t *testing.T) {
	e, err := NewExecutor(seededStore(t))
	require.NoError(t, err)

	res, err := e.Search(context.Background(), []string{"Jon"})
	require.NoError(t, err)

	assert.Len(t, collectAll(t, res), 1)
	assert.Empty(t, collectAll(t, res))
}

func TestSearch_WithFieldAndEncoder(t *testing.T) {
	s := seededStore(t)
	fixed := phonetic.EncoderFunc(func(string) string { return "S530" })
	e, err := NewExecutor(s, WithEncoder(fixed), WithField("other"))
	require.NoError(t, err)

	res, err := e.Search(context.Background(), []string{"anything"})
	require.NoError(t, err)

	// Nothing is stored under "other"
	assert.Empty(t, collectAll(t, res))
	assert.Equal(t, []string{"S530"}, res.Codes)
}

func TestSearch_CursorFailureIsYielded(t *testing.T) {
	e, err := NewExecutor(failingCursorStore{})
	require.NoError(t, err)

	res, err := e.Search(context.Background(), []string{"Jon"})
	require.NoError(t, err)

	var gotErr error
	for _, err := range res.Documents(context.Background()) {
		gotErr = err
	}
	assert.True(t, apperrors.HasCode(gotErr, apperrors.ErrCodeSearchFailed))
}

func TestNewExecutor_RequiresStore(t *testing.T) {
	_, err := NewExecutor(nil)
	assert.Error(t, err)
}

type failingCursorStore struct {
	store.Store
}

func (failingCursorStore) FindIn(context.Context, string, []string) (store.Cursor, error) {
	return &errCursor{}, nil
}

type errCursor struct{}

func (*errCursor) Next(context.Context) bool { return false }

func (*errCursor) Document() document.Document { return nil }

func (*errCursor) Err() error { return errors.New("cursor killed") }

func (*errCursor) Close(context.Context) error { return nil }

func TestSearch_DocumentMatchingSeveralPredicatesReturnedOnce(t *testing.T) {
	// Given: John Smith carries both S530 and J500
	e, err := NewExecutor(seededStore(t))
	require.NoError(t, err)

	// When: both of his names are searched for
	res, err := e.Search(context.Background(), []string{"Smith", "Jon"})
	require.NoError(t, err)
	docs := collectAll(t, res)

	// Then: he appears a single time
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"S530", "J500"}, res.Codes)
}
