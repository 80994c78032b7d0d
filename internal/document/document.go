// Package document models schema-less store documents and the fallible,
// per-field accessors used to read them.
//
// Store backends normalize their native values so that nested documents are
// map[string]any and arrays are []any before they reach this package.
package document

import (
	"errors"
	"fmt"
)

// IDField is the key holding a document's unique identifier.
const IDField = "_id"

// Sentinel errors for field access. Accessors wrap them with the key.
var (
	// ErrFieldMissing is returned when a key is absent or null.
	ErrFieldMissing = errors.New("field missing")
	// ErrFieldType is returned when a key holds a value of the wrong type.
	ErrFieldType = errors.New("field has unexpected type")
)

// Document is an opaque key/value mapping fetched from a store.
type Document map[string]any

// ID returns the document identifier, or nil when absent.
func (d Document) ID() any {
	return d[IDField]
}

// Lookup returns the value under key. Null values count as absent.
func (d Document) Lookup(key string) (any, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Array returns the array stored under key.
func (d Document) Array(key string) ([]any, error) {
	v, ok := d.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrFieldMissing)
	}
	switch arr := v.(type) {
	case []any:
		return arr, nil
	case []Document:
		out := make([]any, len(arr))
		for i, sub := range arr {
			out[i] = sub
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(arr))
		for i, sub := range arr {
			out[i] = sub
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%q is %T, want array: %w", key, v, ErrFieldType)
	}
}

// String returns the string stored under key.
func (d Document) String(key string) (string, error) {
	v, ok := d.Lookup(key)
	if !ok {
		return "", fmt.Errorf("%q: %w", key, ErrFieldMissing)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%q is %T, want string: %w", key, v, ErrFieldType)
	}
	return s, nil
}

// AsDocument converts a nested value to a Document.
func AsDocument(v any) (Document, bool) {
	switch sub := v.(type) {
	case Document:
		return sub, true
	case map[string]any:
		return Document(sub), true
	default:
		return nil, false
	}
}
