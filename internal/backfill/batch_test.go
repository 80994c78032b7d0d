package backfill

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/fuzzysearch/internal/store"
)

func TestBatch_FillsToCapacity(t *testing.T) {
	b := NewBatch(2)

	assert.False(t, b.Add(store.UpdateRequest{ID: 1}))
	assert.True(t, b.Add(store.UpdateRequest{ID: 2}))
	assert.True(t, b.Full())
	assert.Equal(t, []any{1, 2}, b.IDs())

	b.Clear()
	assert.Zero(t, b.Len())
	assert.False(t, b.Full())
	assert.Equal(t, 2, b.Cap())
}

func TestBatch_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultBatchSize, NewBatch(0).Cap())
}
