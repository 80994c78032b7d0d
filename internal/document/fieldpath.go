package document

import (
	"fmt"
	"strings"

	apperrors "github.com/Aman-CERP/fuzzysearch/internal/errors"
)

// FieldPath addresses a string field inside the sub-documents of an array:
// "name.firstName" reads firstName from every element of the name array.
//
// Only one level of array nesting is supported.
type FieldPath struct {
	Array string
	Leaf  string
}

// String returns the dotted form.
func (p FieldPath) String() string {
	return p.Array + "." + p.Leaf
}

// ParseFieldPath parses "arrayField.leafField". Both segments must be
// non-empty and there must be exactly two of them.
func ParseFieldPath(s string) (FieldPath, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return FieldPath{}, apperrors.New(apperrors.ErrCodeFieldPathInvalid,
			fmt.Sprintf("invalid field path %q: want arrayField.leafField", s), nil).
			WithDetail("path", s).
			WithSuggestion("use exactly one dot, e.g. name.firstName")
	}
	return FieldPath{Array: parts[0], Leaf: parts[1]}, nil
}

// ParseFieldPaths parses every path, failing on the first invalid one.
func ParseFieldPaths(paths []string) ([]FieldPath, error) {
	out := make([]FieldPath, 0, len(paths))
	for _, p := range paths {
		fp, err := ParseFieldPath(p)
		if err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, nil
}
