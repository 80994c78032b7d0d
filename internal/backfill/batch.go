package backfill

import "github.com/Aman-CERP/fuzzysearch/internal/store"

// DefaultBatchSize is the number of update requests per bulk write.
const DefaultBatchSize = 100

// Batch accumulates update requests up to a fixed capacity.
type Batch struct {
	capacity int
	reqs     []store.UpdateRequest
}

// NewBatch creates an empty batch. Non-positive capacities use DefaultBatchSize.
func NewBatch(capacity int) *Batch {
	if capacity <= 0 {
		capacity = DefaultBatchSize
	}
	return &Batch{
		capacity: capacity,
		reqs:     make([]store.UpdateRequest, 0, capacity),
	}
}

// Add appends req and reports whether the batch is now full.
func (b *Batch) Add(req store.UpdateRequest) bool {
	b.reqs = append(b.reqs, req)
	return b.Full()
}

// Full reports whether the batch reached capacity.
func (b *Batch) Full() bool {
	return len(b.reqs) >= b.capacity
}

// Len returns the number of queued requests.
func (b *Batch) Len() int {
	return len(b.reqs)
}

// Cap returns the batch capacity.
func (b *Batch) Cap() int {
	return b.capacity
}

// Requests returns the queued requests. The slice is reused after Clear.
func (b *Batch) Requests() []store.UpdateRequest {
	return b.reqs
}

// IDs returns the document identifiers in the batch.
func (b *Batch) IDs() []any {
	ids := make([]any, len(b.reqs))
	for i, r := range b.reqs {
		ids[i] = r.ID
	}
	return ids
}

// Clear empties the batch, keeping its storage.
func (b *Batch) Clear() {
	clear(b.reqs)
	b.reqs = b.reqs[:0]
}
