package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "fuzzy.db"), "people")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func seedPeople(t *testing.T, s Store, n int) {
	t.Helper()
	docs := make([]document.Document, n)
	for i := range docs {
		docs[i] = document.Document{
			"_id":  i + 1,
			"name": []any{map[string]any{"name": "Smith"}},
		}
	}
	inserted, err := s.InsertMany(context.Background(), docs)
	require.NoError(t, err)
	require.Equal(t, n, inserted)
}

func collect(t *testing.T, cur Cursor) []document.Document {
	t.Helper()
	ctx := context.Background()
	defer func() { _ = cur.Close(ctx) }()

	var docs []document.Document
	for cur.Next(ctx) {
		docs = append(docs, cur.Document())
	}
	require.NoError(t, cur.Err())
	return docs
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := newTestSQLiteStore(t)

	latency, err := s.Ping(context.Background())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency.Nanoseconds(), int64(0))
}

func TestSQLiteStore_ScanPagesThroughEveryDocument(t *testing.T) {
	// Given: 250 documents
	s := newTestSQLiteStore(t)
	seedPeople(t, s, 250)

	// When: scanning in batches of 100
	cur, err := s.Scan(context.Background(), ScanOptions{BatchSize: 100, FetchTimeout: DefaultFetchTimeout})
	require.NoError(t, err)
	docs := collect(t, cur)

	// Then: every document once, in insertion order
	require.Len(t, docs, 250)
	assert.Equal(t, json.Number("1"), docs[0].ID())
	assert.Equal(t, json.Number("250"), docs[249].ID())

	arr, err := docs[0].Array("name")
	require.NoError(t, err)
	sub, ok := document.AsDocument(arr[0])
	require.True(t, ok)
	assert.Equal(t, "Smith", sub["name"])
}

func TestSQLiteStore_ScanEmptyCollection(t *testing.T) {
	s := newTestSQLiteStore(t)

	cur, err := s.Scan(context.Background(), ScanOptions{})
	require.NoError(t, err)

	assert.Empty(t, collect(t, cur))
}

func TestSQLiteStore_BulkAddToSetIsSetUnion(t *testing.T) {
	// Given: one stored document
	s := newTestSQLiteStore(t)
	seedPeople(t, s, 1)
	ctx := context.Background()

	// When: adding overlapping codes twice, the second time with a scanned ID
	res, err := s.BulkAddToSet(ctx, "soundex", []UpdateRequest{{ID: 1, Codes: []string{"S530", "J500"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Matched)
	assert.Equal(t, int64(1), res.Modified)

	res, err = s.BulkAddToSet(ctx, "soundex", []UpdateRequest{{ID: json.Number("1"), Codes: []string{"J500", "S530"}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Matched)
	assert.Equal(t, int64(0), res.Modified)

	// Then: codes appear once, in first-seen order
	cur, err := s.Scan(ctx, ScanOptions{})
	require.NoError(t, err)
	docs := collect(t, cur)
	require.Len(t, docs, 1)
	assert.Equal(t, []any{"S530", "J500"}, docs[0]["soundex"])
}

func TestSQLiteStore_BulkAddToSetSkipsUnknownDocuments(t *testing.T) {
	s := newTestSQLiteStore(t)
	seedPeople(t, s, 1)

	res, err := s.BulkAddToSet(context.Background(), "soundex", []UpdateRequest{
		{ID: 99, Codes: []string{"S530"}},
		{ID: 1, Codes: []string{"", "S530"}},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Matched)
	assert.Equal(t, int64(1), res.Modified)
}

func TestSQLiteStore_FindIn(t *testing.T) {
	// Given: two documents with different codes
	s := newTestSQLiteStore(t)
	seedPeople(t, s, 2)
	ctx := context.Background()
	_, err := s.BulkAddToSet(ctx, "soundex", []UpdateRequest{
		{ID: 1, Codes: []string{"S530", "J500"}},
		{ID: 2, Codes: []string{"S530"}},
	})
	require.NoError(t, err)

	// When/Then: membership query matches any code
	cur, err := s.FindIn(ctx, "soundex", []string{"J500"})
	require.NoError(t, err)
	docs := collect(t, cur)
	require.Len(t, docs, 1)
	assert.Equal(t, json.Number("1"), docs[0].ID())

	cur, err = s.FindIn(ctx, "soundex", []string{"S530", "J500"})
	require.NoError(t, err)
	docs = collect(t, cur)
	require.Len(t, docs, 2, "a document matching two codes is returned once")
	assert.Equal(t, json.Number("1"), docs[0].ID())
	assert.Equal(t, json.Number("2"), docs[1].ID())

	cur, err = s.FindIn(ctx, "soundex", []string{"Z200"})
	require.NoError(t, err)
	assert.Empty(t, collect(t, cur))

	cur, err = s.FindIn(ctx, "other", []string{"S530"})
	require.NoError(t, err)
	assert.Empty(t, collect(t, cur))

	cur, err = s.FindIn(ctx, "soundex", nil)
	require.NoError(t, err)
	assert.Empty(t, collect(t, cur))
}

func TestSQLiteStore_CollectionsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := NewSQLiteStore(path, "a")
	require.NoError(t, err)
	seedPeople(t, a, 3)
	require.NoError(t, a.Close(context.Background()))

	b, err := NewSQLiteStore(path, "b")
	require.NoError(t, err)
	defer func() { _ = b.Close(context.Background()) }()

	cur, err := b.Scan(context.Background(), ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, collect(t, cur))
}

func TestSQLiteStore_InsertManyGeneratesMissingIDs(t *testing.T) {
	s := newTestSQLiteStore(t)

	n, err := s.InsertMany(context.Background(), []document.Document{{"title": "x"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cur, err := s.Scan(context.Background(), ScanOptions{})
	require.NoError(t, err)
	docs := collect(t, cur)
	require.Len(t, docs, 1)
	id, ok := docs[0].ID().(string)
	require.True(t, ok)
	assert.Len(t, id, 36)
}

func TestSQLiteStore_InsertManyRejectsDuplicateIDs(t *testing.T) {
	s := newTestSQLiteStore(t)
	seedPeople(t, s, 1)

	_, err := s.InsertMany(context.Background(), []document.Document{{"_id": 1}})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDuplicateID))
	assert.True(t, apperrors.IsFatal(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestSQLiteStore_CallerContextEndedIsNotATimeout(t *testing.T) {
	// Given: a caller whose context is already cancelled
	s := newTestSQLiteStore(t)
	seedPeople(t, s, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: writing under that context
	_, err := s.BulkAddToSet(ctx, "soundex", []UpdateRequest{{ID: 1, Codes: []string{"S530"}}})

	// Then: reported as an interruption, never as a retryable store timeout
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInterrupted))
	assert.False(t, apperrors.HasCode(err, apperrors.ErrCodeStoreTimeout))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestSQLiteStore_EnsureIndexIsIdempotent(t *testing.T) {
	// Given: a fresh store
	s := newTestSQLiteStore(t)
	ctx := context.Background()
	spec := IndexSpec{Name: "soundexIndex", Field: "soundex"}

	// When: ensuring the index twice
	created, err := s.EnsureIndex(ctx, spec)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.EnsureIndex(ctx, spec)
	require.NoError(t, err)
	assert.False(t, created)

	// Then: exactly one index with that name
	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, spec.Name).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStore_EnsureIndexConflict(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.EnsureIndex(ctx, IndexSpec{Name: "soundexIndex", Field: "soundex"})
	require.NoError(t, err)

	_, err = s.EnsureIndex(ctx, IndexSpec{Name: "soundexIndex", Field: "codes"})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexConflict))

	// A table with the index name is a conflict too
	_, err = s.EnsureIndex(ctx, IndexSpec{Name: "documents", Field: "soundex"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexConflict))
}

func TestSQLiteStore_LockedDatabaseIsBackpressure(t *testing.T) {
	// Given: another connection holding the write lock
	old := busyTimeoutMS
	busyTimeoutMS = 1
	defer func() { busyTimeoutMS = old }()

	path := filepath.Join(t.TempDir(), "locked.db")
	s, err := NewSQLiteStore(path, "people")
	require.NoError(t, err)
	defer func() { _ = s.Close(context.Background()) }()
	seedPeople(t, s, 1)

	ctx := context.Background()
	other, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer other.Close()
	conn, err := other.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(ctx, "BEGIN EXCLUSIVE")
	require.NoError(t, err)
	defer func() { _, _ = conn.ExecContext(ctx, "ROLLBACK") }()

	// When: writing
	_, err = s.BulkAddToSet(ctx, "soundex", []UpdateRequest{{ID: 1, Codes: []string{"S530"}}})

	// Then: reported as retryable backpressure
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreBackpressure))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestSQLiteStore_ClosedStoreFails(t *testing.T) {
	s, err := NewSQLiteStore("", "people")
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	_, err = s.Ping(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStoreUnavailable))

	cur, err := s.Scan(context.Background(), ScanOptions{})
	require.NoError(t, err)
	assert.False(t, cur.Next(context.Background()))
	assert.True(t, apperrors.HasCode(cur.Err(), apperrors.ErrCodeStoreUnavailable))
}

func TestDecodeJSONDocument(t *testing.T) {
	doc, err := DecodeJSONDocument([]byte(`{"_id": 12345678901234567890, "n": [{"a": "b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), doc.ID())

	_, err = DecodeJSONDocument([]byte(`[1, 2]`))
	assert.Error(t, err)

	_, err = DecodeJSONDocument([]byte(`null`))
	assert.Error(t, err)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
