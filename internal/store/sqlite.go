package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
)

// busyTimeoutMS is how long a writer waits on a locked database before the
// driver reports SQLITE_BUSY.
var busyTimeoutMS = 5000

// SQLiteStore implements Store on a local SQLite file.
//
// Documents are kept as JSON bodies; code arrays live in document_codes where
// the primary key makes INSERT OR IGNORE a set union. The store is scoped to
// one collection; several collections can share a file.
type SQLiteStore struct {
	mu         sync.RWMutex
	db         *sql.DB
	path       string
	collection string
	closed     bool
}

// Verify interface implementation at compile time
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
// If path is empty, creates an in-memory database for testing.
func NewSQLiteStore(path, collection string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.StoreError("failed to open database", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so set pragmas directly
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, apperrors.StoreError("failed to set pragma", err)
		}
	}

	s := &SQLiteStore{
		db:         db,
		path:       path,
		collection: collection,
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, apperrors.StoreError("failed to initialize schema", err)
	}

	slog.Debug("sqlite_store_opened",
		slog.String("path", path),
		slog.String("collection", collection))
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- id is the JSON encoding of the document's _id
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		body       TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	-- One row per stored code; seq keeps array order
	CREATE TABLE IF NOT EXISTS document_codes (
		collection TEXT NOT NULL,
		doc_id     TEXT NOT NULL,
		field      TEXT NOT NULL,
		code       TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		PRIMARY KEY (collection, doc_id, field, code)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, errStoreClosed()
	}

	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return 0, classifySQLite(ctx, "ping", err)
	}
	return time.Since(start), nil
}

// Scan pages through the collection in insertion order.
func (s *SQLiteStore) Scan(ctx context.Context, opts ScanOptions) (Cursor, error) {
	opts = opts.withDefaults()
	return &sqliteCursor{
		store:        s,
		limit:        opts.BatchSize,
		fetchTimeout: opts.FetchTimeout,
	}, nil
}

// FindIn returns documents with at least one of values under field.
func (s *SQLiteStore) FindIn(ctx context.Context, field string, values []string) (Cursor, error) {
	if len(values) == 0 {
		return &sqliteCursor{store: s, done: true}, nil
	}

	// IN over a subquery keeps set semantics: one row per document however
	// many of its codes match.
	where := ` AND documents.id IN (SELECT c.doc_id FROM document_codes c
		WHERE c.collection = documents.collection
		AND c.field = ? AND c.code IN (` + placeholders(len(values)) + `))`
	args := make([]any, 0, len(values)+1)
	args = append(args, field)
	for _, v := range values {
		args = append(args, v)
	}

	return &sqliteCursor{
		store: s,
		limit: DefaultBatchSize,
		where: where,
		args:  args,
	}, nil
}

// BulkAddToSet adds codes in one transaction. A request whose document does
// not exist is not matched and changes nothing.
func (s *SQLiteStore) BulkAddToSet(ctx context.Context, field string, reqs []UpdateRequest) (*BulkResult, error) {
	if len(reqs) == 0 {
		return &BulkResult{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errStoreClosed()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifySQLite(ctx, "bulk write", err)
	}
	defer func() { _ = tx.Rollback() }()

	existsStmt, err := tx.PrepareContext(ctx,
		`SELECT 1 FROM documents WHERE collection = ? AND id = ?`)
	if err != nil {
		return nil, classifySQLite(ctx, "bulk write", err)
	}
	defer existsStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO document_codes (collection, doc_id, field, code, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM document_codes
			WHERE collection = ? AND doc_id = ? AND field = ?))`)
	if err != nil {
		return nil, classifySQLite(ctx, "bulk write", err)
	}
	defer insertStmt.Close()

	var result BulkResult
	for _, req := range reqs {
		id, err := encodeID(req.ID)
		if err != nil {
			return nil, apperrors.ValidationError("invalid document id", err)
		}

		var one int
		err = existsStmt.QueryRowContext(ctx, s.collection, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, classifySQLite(ctx, "bulk write", err)
		}
		result.Matched++

		modified := false
		for _, code := range req.Codes {
			if code == "" {
				continue
			}
			res, err := insertStmt.ExecContext(ctx,
				s.collection, id, field, code,
				s.collection, id, field)
			if err != nil {
				return nil, classifySQLite(ctx, "bulk write", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				modified = true
			}
		}
		if modified {
			result.Modified++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, classifySQLite(ctx, "bulk write", err)
	}
	return &result, nil
}

// EnsureIndex creates a partial index over the codes stored under spec.Field.
// An index with the same name is accepted only if its definition matches.
func (s *SQLiteStore) EnsureIndex(ctx context.Context, spec IndexSpec) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errStoreClosed()
	}

	stmt := indexStatement(spec)

	var kind, existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT type, COALESCE(sql, '') FROM sqlite_master WHERE name = ?`, spec.Name).
		Scan(&kind, &existing)
	switch {
	case err == nil:
		if kind == "index" && sameStatement(existing, stmt) {
			return false, nil
		}
		return false, apperrors.New(apperrors.ErrCodeIndexConflict,
			fmt.Sprintf("index %q exists with a different definition", spec.Name), nil).
			WithDetail("index", spec.Name).
			WithDetail("existing", existing).
			WithSuggestion("drop the existing index or configure another index name")
	case !errors.Is(err, sql.ErrNoRows):
		return false, classifySQLite(ctx, "list indexes", err)
	}

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return false, classifySQLite(ctx, "create index", err)
	}
	return true, nil
}

// InsertMany inserts docs in one transaction. Documents without _id get a
// random UUID.
func (s *SQLiteStore) InsertMany(ctx context.Context, docs []document.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errStoreClosed()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifySQLite(ctx, "insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, classifySQLite(ctx, "insert", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		row := make(document.Document, len(doc)+1)
		for k, v := range doc {
			row[k] = v
		}
		if row.ID() == nil {
			row[document.IDField] = uuid.NewString()
		}

		id, err := encodeID(row.ID())
		if err != nil {
			return 0, apperrors.ValidationError("invalid document id", err)
		}
		body, err := json.Marshal(row)
		if err != nil {
			return 0, apperrors.ValidationError("document is not JSON-encodable", err).
				WithDetail("id", id)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, id, string(body)); err != nil {
			return 0, classifySQLite(ctx, "insert", err).WithDetail("id", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classifySQLite(ctx, "insert", err)
	}
	return len(docs), nil
}

// Close closes the database.
func (s *SQLiteStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// fetchPage returns up to limit documents with rowid greater than after,
// together with the last rowid read.
func (s *SQLiteStore) fetchPage(ctx context.Context, where string, whereArgs []any, after int64, limit int) ([]document.Document, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, after, errStoreClosed()
	}

	query := `SELECT rowid, id, body FROM documents
		WHERE collection = ? AND rowid > ?` + where + `
		ORDER BY rowid LIMIT ?`
	args := make([]any, 0, len(whereArgs)+3)
	args = append(args, s.collection, after)
	args = append(args, whereArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, after, err
	}

	type pageRow struct {
		id   string
		body string
	}
	var page []pageRow
	last := after
	for rows.Next() {
		var r pageRow
		if err := rows.Scan(&last, &r.id, &r.body); err != nil {
			_ = rows.Close()
			return nil, after, err
		}
		page = append(page, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, after, err
	}
	_ = rows.Close()

	if len(page) == 0 {
		return nil, last, nil
	}

	ids := make([]string, len(page))
	for i, r := range page {
		ids[i] = r.id
	}
	codes, err := s.loadCodes(ctx, ids)
	if err != nil {
		return nil, after, err
	}

	docs := make([]document.Document, 0, len(page))
	for _, r := range page {
		doc, err := decodeDocument(r.id, r.body)
		if err != nil {
			return nil, after, apperrors.InternalError("stored document is corrupt", err).
				WithDetail("id", r.id)
		}
		for field, values := range codes[r.id] {
			doc[field] = values
		}
		docs = append(docs, doc)
	}
	return docs, last, nil
}

// loadCodes returns doc id -> field -> codes in array order.
func (s *SQLiteStore) loadCodes(ctx context.Context, ids []string) (map[string]map[string][]any, error) {
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.collection)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, field, code FROM document_codes
		WHERE collection = ? AND doc_id IN (`+placeholders(len(ids))+`)
		ORDER BY doc_id, field, seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]map[string][]any)
	for rows.Next() {
		var id, field, code string
		if err := rows.Scan(&id, &field, &code); err != nil {
			return nil, err
		}
		if out[id] == nil {
			out[id] = make(map[string][]any)
		}
		out[id][field] = append(out[id][field], code)
	}
	return out, rows.Err()
}

// sqliteCursor fetches one page per round-trip, each bounded by fetchTimeout.
type sqliteCursor struct {
	store        *SQLiteStore
	limit        int
	fetchTimeout time.Duration
	where        string
	args         []any

	page  []document.Document
	pos   int
	after int64
	done  bool
	doc   document.Document
	err   error
}

func (c *sqliteCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos >= len(c.page) && !c.fill(ctx) {
		return false
	}
	c.doc = c.page[c.pos]
	c.pos++
	return true
}

func (c *sqliteCursor) fill(ctx context.Context) bool {
	if c.done {
		return false
	}

	fetchCtx := ctx
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	docs, last, err := c.store.fetchPage(fetchCtx, c.where, c.args, c.after, c.limit)
	if err != nil {
		c.err = classifySQLite(ctx, "cursor", err)
		return false
	}
	if len(docs) < c.limit {
		c.done = true
	}
	if len(docs) == 0 {
		return false
	}
	c.page, c.pos, c.after = docs, 0, last
	return true
}

func (c *sqliteCursor) Document() document.Document { return c.doc }

func (c *sqliteCursor) Err() error { return c.err }

func (c *sqliteCursor) Close(context.Context) error {
	c.done = true
	c.page = nil
	return nil
}

// classifySQLite maps driver errors onto internal/errors codes.
// BUSY and LOCKED mean another writer holds the database: no progress.
// A failure caused by the caller's own ctx ending is never retryable.
func classifySQLite(ctx context.Context, op string, err error) *apperrors.AppError {
	if ae, ok := apperrors.As(err); ok {
		return ae
	}

	msg := op + " failed"

	if ctx.Err() != nil {
		return interrupted(msg, err)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return apperrors.BackpressureError(msg+": database is locked", err)
		case sqlite3.SQLITE_CONSTRAINT:
			return apperrors.New(apperrors.ErrCodeDuplicateID, msg+": duplicate _id", err).
				WithSuggestion("the collection already holds a document with this _id")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.New(apperrors.ErrCodeStoreTimeout, msg+": timed out", err)
	}
	return apperrors.StoreError(msg, err)
}

func errStoreClosed() *apperrors.AppError {
	return apperrors.StoreError("store is closed", nil)
}

func indexStatement(spec IndexSpec) string {
	return fmt.Sprintf(`CREATE INDEX %s ON document_codes (collection, code) WHERE field = %s`,
		quoteIdent(spec.Name), quoteLiteral(spec.Field))
}

// sameStatement compares two CREATE statements ignoring whitespace runs.
func sameStatement(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func encodeID(id any) (string, error) {
	if id == nil {
		return "", fmt.Errorf("document has no %s", document.IDField)
	}
	b, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeDocument parses a stored body, keeping numbers as json.Number so that
// identifiers and values round-trip exactly.
func decodeDocument(id, body string) (document.Document, error) {
	doc, err := DecodeJSONDocument([]byte(body))
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(id))
	dec.UseNumber()
	var idValue any
	if err := dec.Decode(&idValue); err != nil {
		return nil, err
	}
	doc[document.IDField] = idValue
	return doc, nil
}

// DecodeJSONDocument parses one JSON object into a Document, keeping numbers
// as json.Number.
func DecodeJSONDocument(data []byte) (document.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	return document.Document(m), nil
}
