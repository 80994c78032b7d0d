package codeset

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/phonetic"
)

// BuildStats counts what the Builder saw across all documents.
type BuildStats struct {
	Documents     int64
	FieldsSkipped int64
	Tokens        int64
	EmptyCodes    int64
}

// Builder turns a document into its CodeSet using the configured field paths.
type Builder struct {
	paths   []document.FieldPath
	encoder phonetic.Encoder

	documents     atomic.Int64
	fieldsSkipped atomic.Int64
	tokens        atomic.Int64
	emptyCodes    atomic.Int64
}

// NewBuilder creates a Builder. A nil encoder falls back to plain Soundex.
func NewBuilder(paths []document.FieldPath, encoder phonetic.Encoder) *Builder {
	if encoder == nil {
		encoder = phonetic.SoundexEncoder
	}
	return &Builder{
		paths:   slices.Clone(paths),
		encoder: encoder,
	}
}

// Paths returns the configured field paths.
func (b *Builder) Paths() []document.FieldPath {
	return slices.Clone(b.paths)
}

// Build computes the CodeSet for doc. Codes accumulate in field path order,
// then array order, then token order. A field that cannot be read is logged
// and skipped; the remaining fields still contribute.
func (b *Builder) Build(doc document.Document) CodeSet {
	b.documents.Add(1)

	var set CodeSet
	for _, path := range b.paths {
		values, err := document.Extract(doc, path)
		if err != nil {
			b.fieldsSkipped.Add(1)
			slog.Debug("codeset_field_skipped", append(
				apperrors.LogAttrs(fieldError(path, err)),
				slog.Any("id", doc.ID()))...)
			continue
		}

		for value := range values {
			for _, token := range strings.Fields(value) {
				b.tokens.Add(1)
				code := b.encoder.Encode(token)
				if code == "" {
					b.emptyCodes.Add(1)
					continue
				}
				set.Add(code)
			}
		}
	}
	return set
}

// Stats returns a snapshot of the counters.
func (b *Builder) Stats() BuildStats {
	return BuildStats{
		Documents:     b.documents.Load(),
		FieldsSkipped: b.fieldsSkipped.Load(),
		Tokens:        b.tokens.Load(),
		EmptyCodes:    b.emptyCodes.Load(),
	}
}

// fieldError classifies a field access failure. Missing fields are the
// common case for sparse documents.
func fieldError(path document.FieldPath, err error) *apperrors.AppError {
	code := apperrors.ErrCodeFieldType
	if errors.Is(err, document.ErrFieldMissing) {
		code = apperrors.ErrCodeFieldMissing
	}
	return apperrors.New(code, "field skipped", err).WithDetail("field", path.String())
}
