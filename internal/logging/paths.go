package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.fuzzysearch/logs/).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".fuzzysearch", "logs")
	}
	return filepath.Join(home, ".fuzzysearch", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "fuzzysearch.log")
}

// EnsureLogDir creates the directory holding path.
func EnsureLogDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
