// Package index ensures the supporting index on the phonetic code array.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

// Defaults for the code array index.
const (
	DefaultName  = "soundexIndex"
	DefaultField = "soundex"
)

// Result contains the outcome of EnsureIndex.
type Result struct {
	Name     string
	Field    string
	Created  bool
	Duration time.Duration
}

// Manager creates the code array index.
type Manager struct {
	store store.Store
	spec  store.IndexSpec
}

// NewManager creates a Manager. Empty name or field use the defaults.
func NewManager(s store.Store, name, field string) (*Manager, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if name == "" {
		name = DefaultName
	}
	if field == "" {
		field = DefaultField
	}
	return &Manager{
		store: s,
		spec:  store.IndexSpec{Name: name, Field: field},
	}, nil
}

// EnsureIndex creates a single-field ascending index on the code array. An
// existing index with the same definition is left alone; one with the same
// name and another definition is a fatal ERR_504_INDEX_CONFLICT.
func (m *Manager) EnsureIndex(ctx context.Context) (*Result, error) {
	start := time.Now()
	slog.Info("index_ensure_started",
		slog.String("name", m.spec.Name),
		slog.String("field", m.spec.Field))

	created, err := m.store.EnsureIndex(ctx, m.spec)
	result := &Result{
		Name:     m.spec.Name,
		Field:    m.spec.Field,
		Created:  created,
		Duration: time.Since(start),
	}
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.New(apperrors.ErrCodeIndexFailed, "failed to create index", err)
		}
		slog.Error("index_ensure_failed", apperrors.LogAttrs(err)...)
		return result, err
	}

	slog.Info("index_ensured",
		slog.String("name", m.spec.Name),
		slog.Bool("created", created),
		slog.Int64("duration_ms", result.Duration.Milliseconds()))
	return result, nil
}
