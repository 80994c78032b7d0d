// Package search answers "sounds like" queries against the code array.
package search

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/Aman-CERP/fuzzysearch/internal/codeset"
	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/phonetic"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

// DefaultField is the array field queried.
const DefaultField = "soundex"

// Executor encodes predicates and runs one membership query.
type Executor struct {
	store   store.Store
	encoder phonetic.Encoder
	field   string
}

// Option configures the Executor.
type Option func(*Executor)

// WithEncoder sets the phonetic encoder. Defaults to Soundex.
func WithEncoder(enc phonetic.Encoder) Option {
	return func(e *Executor) {
		if enc != nil {
			e.encoder = enc
		}
	}
}

// WithField sets the queried array field.
func WithField(field string) Option {
	return func(e *Executor) {
		if field != "" {
			e.field = field
		}
	}
}

// NewExecutor creates an Executor over s.
func NewExecutor(s store.Store, opts ...Option) (*Executor, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	e := &Executor{
		store:   s,
		encoder: phonetic.SoundexEncoder,
		field:   DefaultField,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Result is a lazy, single-pass sequence of matching documents.
type Result struct {
	// Predicates are the query strings as given.
	Predicates []string

	// Codes are the distinct non-empty codes sent to the store.
	Codes []string

	// Warning is set when no predicate had a phonetic code. The store was
	// not queried and the result is empty.
	Warning *apperrors.AppError

	cursor store.Cursor
	used   bool
}

// Documents yields matches in store order. It closes the cursor when the
// loop ends and yields a final error if the cursor failed. Only the first
// call yields anything.
func (r *Result) Documents(ctx context.Context) iter.Seq2[document.Document, error] {
	return func(yield func(document.Document, error) bool) {
		if r.used {
			return
		}
		r.used = true
		defer func() { _ = r.cursor.Close(context.WithoutCancel(ctx)) }()

		for r.cursor.Next(ctx) {
			if !yield(r.cursor.Document(), nil) {
				return
			}
		}
		if err := r.cursor.Err(); err != nil {
			yield(nil, apperrors.New(apperrors.ErrCodeSearchFailed, "search failed while reading results", err))
		}
	}
}

// Close releases the cursor without reading it.
func (r *Result) Close(ctx context.Context) error {
	r.used = true
	return r.cursor.Close(ctx)
}

// Encode returns the distinct non-empty codes of predicates, in order.
// Predicates are encoded whole.
func (e *Executor) Encode(predicates []string) []string {
	var set codeset.CodeSet
	for _, p := range predicates {
		set.Add(e.encoder.Encode(p))
	}
	return set.Codes()
}

// Search runs {field: {$in: codes}} for the encoded predicates.
// A query where every predicate encodes to the empty code matches nothing:
// the store is not queried and Result.Warning carries ERR_402_QUERY_EMPTY.
func (e *Executor) Search(ctx context.Context, predicates []string) (*Result, error) {
	start := time.Now()

	codes := e.Encode(predicates)
	if len(codes) == 0 {
		warn := apperrors.New(apperrors.ErrCodeQueryEmpty,
			"no search predicate has a phonetic code", nil).
			WithDetail("predicates", fmt.Sprintf("%q", predicates)).
			WithSuggestion("use predicates containing letters A-Z")
		slog.Warn("search_query_empty", apperrors.LogAttrs(warn)...)
		return &Result{
			Predicates: append([]string(nil), predicates...),
			Codes:      []string{},
			Warning:    warn,
			cursor:     noMatches{},
		}, nil
	}

	cur, err := e.store.FindIn(ctx, e.field, codes)
	if err != nil {
		slog.Error("search_failed", apperrors.LogAttrs(err)...)
		return nil, err
	}

	slog.Info("search_started",
		slog.Int("predicates", len(predicates)),
		slog.Any("codes", codes),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return &Result{
		Predicates: append([]string(nil), predicates...),
		Codes:      codes,
		cursor:     cur,
	}, nil
}

// noMatches is the cursor of a query that was never sent.
type noMatches struct{}

func (noMatches) Next(context.Context) bool { return false }
func (noMatches) Document() document.Document { return nil }
func (noMatches) Err() error { return nil }
func (noMatches) Close(context.Context) error { return nil }
