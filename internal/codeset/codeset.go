// Package codeset computes the phonetic code array stored on each document.
package codeset

import "slices"

// CodeSet is an insertion-ordered sequence of distinct, non-empty codes.
// The zero value is an empty set ready to use.
type CodeSet struct {
	codes []string
}

// Add appends code unless it is empty or already present.
// It reports whether the set changed.
func (s *CodeSet) Add(code string) bool {
	if code == "" || slices.Contains(s.codes, code) {
		return false
	}
	s.codes = append(s.codes, code)
	return true
}

// Len returns the number of codes.
func (s CodeSet) Len() int {
	return len(s.codes)
}

// Empty reports whether the set has no codes.
func (s CodeSet) Empty() bool {
	return len(s.codes) == 0
}

// Codes returns a copy of the codes in insertion order.
func (s CodeSet) Codes() []string {
	return slices.Clone(s.codes)
}
