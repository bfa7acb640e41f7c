package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/tier-alloc/internal/constants"
)

// DataDir returns the tieralloc data directory.
// On Unix: ~/.tieralloc
// On Windows: %USERPROFILE%\.tieralloc
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName), nil
}

// DefaultDBPath returns the default database location inside DataDir.
func DefaultDBPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.DatabaseFileName), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
