package store

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a backend.
type Options struct {
	Backend    Backend
	URI        string
	Database   string
	Collection string

	// SQLitePath is the database file for BackendSQLite. Empty means an
	// in-memory database.
	SQLitePath string
}

// Open creates a Store for the configured backend.
//
// backend options:
//   - "mongo" (default): MongoDB through the official v2 driver
//   - "sqlite": local file through modernc.org/sqlite (pure Go)
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	switch Backend(strings.ToLower(string(opts.Backend))) {
	case BackendMongo, "":
		return NewMongoStore(ctx, opts.URI, opts.Database, opts.Collection)
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath, opts.Collection)
	default:
		return nil, fmt.Errorf("unknown store backend: %s (valid options: mongo, sqlite)", opts.Backend)
	}
}

// ValidBackend reports whether name selects a known backend.
func ValidBackend(name string) bool {
	switch Backend(strings.ToLower(name)) {
	case BackendMongo, BackendSQLite, "":
		return true
	}
	return false
}
