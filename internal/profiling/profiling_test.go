package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fuzzysearch/internal/phonetic"
)

func TestSession_WritesAllProfiles(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPUPath:   filepath.Join(dir, "cpu.prof"),
		HeapPath:  filepath.Join(dir, "heap.prof"),
		TracePath: filepath.Join(dir, "trace.out"),
	}

	// Given: a running session
	s, err := Start(opts)
	require.NoError(t, err)

	// When: encoding some names and stopping
	for range 10000 {
		_ = phonetic.Soundex("Ashcraft")
	}
	require.NoError(t, s.Stop())

	// Then: every file exists and has content
	for _, path := range []string{opts.CPUPath, opts.HeapPath, opts.TracePath} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Greater(t, info.Size(), int64(0), path)
	}
}

func TestSession_HeapOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.prof")

	s, err := Start(Options{HeapPath: path})
	require.NoError(t, err)
	require.NoError(t, s.Stop())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestStart_BadCPUPath(t *testing.T) {
	_, err := Start(Options{CPUPath: filepath.Join(t.TempDir(), "missing", "cpu.prof")})

	assert.Error(t, err)
}

func TestStart_BadTracePathStopsCPU(t *testing.T) {
	dir := t.TempDir()

	_, err := Start(Options{
		CPUPath:   filepath.Join(dir, "cpu.prof"),
		TracePath: filepath.Join(dir, "missing", "trace.out"),
	})
	require.Error(t, err)

	// CPU profiling was released, so a new session can start it again
	s, err := Start(Options{CPUPath: filepath.Join(dir, "cpu2.prof")})
	require.NoError(t, err)
	require.NoError(t, s.Stop())
}

func TestOptions_Enabled(t *testing.T) {
	assert.False(t, Options{}.Enabled())
	assert.True(t, Options{TracePath: "t"}.Enabled())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
