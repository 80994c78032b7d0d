package codeset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
	"github.com/Aman-CERP/fuzzysearch/internal/phonetic"
)

func mustPaths(t *testing.T, paths ...string) []document.FieldPath {
	t.Helper()
	fps, err := document.ParseFieldPaths(paths)
	require.NoError(t, err)
	return fps
}

func TestBuilder_SmithJohn(t *testing.T) {
	// Given: the canonical single-person document
	doc := document.Document{
		"_id": 1,
		"name": []any{
			map[string]any{"name": "Smith", "firstName": "John"},
		},
	}
	b := NewBuilder(mustPaths(t, "name.name", "name.firstName"), nil)

	// When: building the code set
	set := b.Build(doc)

	// Then: codes for Smith and John, in field path order
	assert.Equal(t, []string{"S530", "J500"}, set.Codes())
}

func TestBuilder_OrderFollowsPathsThenArrayThenTokens(t *testing.T) {
	doc := document.Document{
		"name": []any{
			map[string]any{"name": "Smith Jackson", "firstName": "Robert"},
			map[string]any{"name": "Lee", "firstName": "Ann"},
		},
	}
	b := NewBuilder(mustPaths(t, "name.name", "name.firstName"), nil)

	set := b.Build(doc)

	assert.Equal(t, []string{"S530", "J250", "L000", "R163", "A500"}, set.Codes())
}

func TestBuilder_DeduplicatesAcrossFieldsAndTokens(t *testing.T) {
	// Given: Smith and Smyth share a code, and the value repeats across fields
	doc := document.Document{
		"name": []any{
			map[string]any{"name": "Smith Smyth", "alias": "Smith"},
			map[string]any{"name": "smith"},
		},
	}
	b := NewBuilder(mustPaths(t, "name.name", "name.alias"), nil)

	set := b.Build(doc)

	// Then: one code only
	assert.Equal(t, []string{"S530"}, set.Codes())
}

func TestBuilder_EmptyCodesNeverStored(t *testing.T) {
	doc := document.Document{
		"name": []any{
			map[string]any{"name": "!!! 1234 --"},
			map[string]any{"name": "   "},
		},
	}
	b := NewBuilder(mustPaths(t, "name.name"), nil)

	set := b.Build(doc)

	assert.True(t, set.Empty())
	assert.NotContains(t, set.Codes(), "")
	stats := b.Stats()
	assert.Equal(t, int64(3), stats.Tokens)
	assert.Equal(t, int64(3), stats.EmptyCodes)
}

func TestBuilder_MissingFieldYieldsEmptySet(t *testing.T) {
	// Given: a document without any configured array
	b := NewBuilder(mustPaths(t, "name.name", "alias.name"), nil)

	// When: building
	set := b.Build(document.Document{"_id": 7, "title": "x"})

	// Then: nothing, and both fields counted as skipped
	assert.True(t, set.Empty())
	assert.Equal(t, int64(2), b.Stats().FieldsSkipped)
}

func TestBuilder_MalformedFieldDoesNotBlockOthers(t *testing.T) {
	// Given: one path pointing at a scalar, the other usable
	doc := document.Document{
		"alias": "not an array",
		"name": []any{
			map[string]any{"name": 12},
			map[string]any{"name": "Jon"},
		},
	}
	b := NewBuilder(mustPaths(t, "alias.name", "name.name"), nil)

	set := b.Build(doc)

	assert.Equal(t, []string{"J500"}, set.Codes())
	assert.Equal(t, int64(1), b.Stats().FieldsSkipped)
	assert.Equal(t, int64(1), b.Stats().Documents)
}

func TestBuilder_UsesInjectedEncoder(t *testing.T) {
	calls := 0
	enc := phonetic.EncoderFunc(func(token string) string {
		calls++
		return "X" + token
	})
	doc := document.Document{"n": []any{map[string]any{"v": "a b a"}}}
	b := NewBuilder(mustPaths(t, "n.v"), enc)

	set := b.Build(doc)

	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"Xa", "Xb"}, set.Codes())
}

func TestBuilder_PathsAreCopied(t *testing.T) {
	paths := mustPaths(t, "name.name")
	b := NewBuilder(paths, nil)

	paths[0].Leaf = "changed"

	assert.Equal(t, "name", b.Paths()[0].Leaf)
}

func TestFieldError_Classifies(t *testing.T) {
	path := mustPaths(t, "names.last")[0]

	_, missingErr := document.Extract(document.Document{}, path)
	_, typeErr := document.Extract(document.Document{"names": "Smith"}, path)
	require.Error(t, missingErr)
	require.Error(t, typeErr)

	missing := fieldError(path, missingErr)
	assert.Equal(t, apperrors.ErrCodeFieldMissing, missing.Code)
	assert.Equal(t, apperrors.SeverityWarning, missing.Severity)
	assert.Equal(t, "names.last", missing.Details["field"])

	assert.Equal(t, apperrors.ErrCodeFieldType, fieldError(path, typeErr).Code)
}
