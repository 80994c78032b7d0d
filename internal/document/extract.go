package document

import "iter"

// Extract returns the leaf strings addressed by path, in array order.
//
// It fails when the array field is missing or is not an array. Elements that
// are not sub-documents, or whose leaf is missing, null, not a string or
// empty, are skipped. The sequence is meant to be consumed once.
func Extract(doc Document, path FieldPath) (iter.Seq[string], error) {
	elems, err := doc.Array(path.Array)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		for _, elem := range elems {
			sub, ok := AsDocument(elem)
			if !ok {
				continue
			}
			value, err := sub.String(path.Leaf)
			if err != nil || value == "" {
				continue
			}
			if !yield(value) {
				return
			}
		}
	}, nil
}
