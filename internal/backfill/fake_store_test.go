package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/Aman-CERP/fuzzysearch/internal/document"
	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

// fakeStore serves documents from memory and lets tests script bulk writes.
type fakeStore struct {
	mu        sync.Mutex
	docs      []document.Document
	scanErr   error
	cursorErr error
	scanOpts  store.ScanOptions

	// bulk decides the outcome of the n-th BulkAddToSet call (1-based).
	bulk        func(call int, reqs []store.UpdateRequest) error
	calls       int
	submissions [][]store.UpdateRequest
	codes       map[any][]string
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore(docs ...document.Document) *fakeStore {
	return &fakeStore{docs: docs, codes: make(map[any][]string)}
}

func (f *fakeStore) Ping(context.Context) (time.Duration, error) { return time.Millisecond, nil }

func (f *fakeStore) Scan(_ context.Context, opts store.ScanOptions) (store.Cursor, error) {
	f.scanOpts = opts
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &sliceCursor{docs: f.docs, err: f.cursorErr}, nil
}

func (f *fakeStore) BulkAddToSet(_ context.Context, _ string, reqs []store.UpdateRequest) (*store.BulkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.bulk != nil {
		if err := f.bulk(f.calls, reqs); err != nil {
			return nil, err
		}
	}

	// Copy: the pipeline reuses the batch storage after submission
	f.submissions = append(f.submissions, append([]store.UpdateRequest(nil), reqs...))

	res := &store.BulkResult{}
	for _, r := range reqs {
		res.Matched++
		changed := false
		for _, c := range r.Codes {
			if !containsString(f.codes[r.ID], c) {
				f.codes[r.ID] = append(f.codes[r.ID], c)
				changed = true
			}
		}
		if changed {
			res.Modified++
		}
	}
	return res, nil
}

func (f *fakeStore) EnsureIndex(context.Context, store.IndexSpec) (bool, error) { return true, nil }

func (f *fakeStore) FindIn(context.Context, string, []string) (store.Cursor, error) {
	return &sliceCursor{}, nil
}

func (f *fakeStore) InsertMany(_ context.Context, docs []document.Document) (int, error) {
	f.docs = append(f.docs, docs...)
	return len(docs), nil
}

func (f *fakeStore) Close(context.Context) error { return nil }

func (f *fakeStore) submissionSizes() []int {
	sizes := make([]int, len(f.submissions))
	for i, s := range f.submissions {
		sizes[i] = len(s)
	}
	return sizes
}

// sliceCursor yields docs, then fails with err if set.
type sliceCursor struct {
	docs []document.Document
	pos  int
	cur  document.Document
	err  error
	done bool
}

func (c *sliceCursor) Next(context.Context) bool {
	if c.pos >= len(c.docs) {
		c.done = true
		return false
	}
	c.cur = c.docs[c.pos]
	c.pos++
	return true
}

func (c *sliceCursor) Document() document.Document { return c.cur }

func (c *sliceCursor) Err() error {
	if c.done {
		return c.err
	}
	return nil
}

func (c *sliceCursor) Close(context.Context) error { return nil }

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func person(id int, names ...string) document.Document {
	arr := make([]any, len(names))
	for i, n := range names {
		arr[i] = map[string]any{"name": n}
	}
	return document.Document{"_id": id, "name": arr}
}

func people(n int) []document.Document {
	docs := make([]document.Document, n)
	for i := range docs {
		docs[i] = person(i+1, "Smith")
	}
	return docs
}
