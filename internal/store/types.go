// Package store is the boundary between the phonetic index core and the
// document store that holds the collection.
//
// Two backends implement Store: MongoStore, talking to a MongoDB deployment,
// and SQLiteStore, which keeps documents and their code arrays in a local
// SQLite file. Both classify their native failures into internal/errors
// codes so callers never inspect driver error shapes.
package store

import (
	"context"
	"time"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
)

// Backend names a Store implementation.
type Backend string

const (
	// BackendMongo stores documents in MongoDB (default).
	BackendMongo Backend = "mongo"

	// BackendSQLite stores documents in a local SQLite file.
	BackendSQLite Backend = "sqlite"
)

// Default scan settings.
const (
	DefaultBatchSize    = 100
	DefaultFetchTimeout = 5 * time.Second
)

// ScanOptions configures a full collection scan.
type ScanOptions struct {
	// BatchSize is the number of documents fetched per round-trip.
	BatchSize int

	// FetchTimeout bounds every round-trip to the store. Zero disables it.
	FetchTimeout time.Duration
}

// withDefaults fills unset fields.
func (o ScanOptions) withDefaults() ScanOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// UpdateRequest adds Codes to the array of one document, skipping codes
// already present.
type UpdateRequest struct {
	ID    any
	Codes []string
}

// BulkResult reports the outcome of a BulkAddToSet call.
type BulkResult struct {
	// Matched is the number of requests whose document exists.
	Matched int64

	// Modified is the number of documents that gained at least one code.
	Modified int64
}

// IndexSpec describes a single-field ascending index.
type IndexSpec struct {
	Name  string
	Field string
}

// Cursor is a forward, single-pass sequence of documents.
type Cursor interface {
	// Next advances to the next document. It returns false when the cursor
	// is exhausted or failed; Err tells the two apart.
	Next(ctx context.Context) bool

	// Document returns the current document.
	Document() document.Document

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close releases server-side resources.
	Close(ctx context.Context) error
}

// Store is the set of requests the core issues to the document store.
type Store interface {
	// Ping checks connectivity and returns the round-trip latency.
	Ping(ctx context.Context) (time.Duration, error)

	// Scan opens a cursor over every document in the collection.
	Scan(ctx context.Context, opts ScanOptions) (Cursor, error)

	// BulkAddToSet applies every request as a set-union append to field.
	// Requests are independent; the call is idempotent.
	BulkAddToSet(ctx context.Context, field string, reqs []UpdateRequest) (*BulkResult, error)

	// EnsureIndex creates the index unless an identical one exists.
	// It reports whether the index was created by this call.
	EnsureIndex(ctx context.Context, spec IndexSpec) (bool, error)

	// FindIn returns documents whose field array contains any of values.
	FindIn(ctx context.Context, field string, values []string) (Cursor, error)

	// InsertMany adds documents to the collection.
	InsertMany(ctx context.Context, docs []document.Document) (int, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}
