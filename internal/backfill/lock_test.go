package backfill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLock_ExcludesSecondHolder(t *testing.T) {
	// Given: one pass holding the lock
	dir := t.TempDir()
	first, err := AcquireLock(dir, "demo", "fuzzy")
	require.NoError(t, err)
	require.NotNil(t, first)
	defer func() { _ = first.Unlock() }()

	_, err = os.Stat(first.Path())
	require.NoError(t, err)

	// When: a second pass tries the same collection
	second, err := AcquireLock(dir, "demo", "fuzzy")

	// Then: it is told to skip
	require.NoError(t, err)
	assert.Nil(t, second)

	// And: other collections are independent
	other, err := AcquireLock(dir, "demo", "people")
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.NoError(t, other.Unlock())
}

func TestRunLock_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	l, err := AcquireLock(dir, "demo", "fuzzy")
	require.NoError(t, err)
	assert.True(t, l.IsLocked())

	require.NoError(t, l.Unlock())
	require.NoError(t, l.Unlock())
	assert.False(t, l.IsLocked())

	again, err := AcquireLock(dir, "demo", "fuzzy")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.NoError(t, again.Unlock())
}

func TestRunLock_SanitizesName(t *testing.T) {
	l := NewRunLock("/tmp/locks", "my db", "a/b")

	assert.Equal(t, filepath.Join("/tmp/locks", "my_db.a_b.lock"), l.Path())
	assert.Equal(t, filepath.Join("/tmp/locks", "_._.lock"), NewRunLock("/tmp/locks", "", "").Path())
}
