package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755
)

var (
	// ConfigDir is the global configuration directory (~/.chatstress)
	ConfigDir string

	// DatabasePath is the SQLite database file for run summaries
	DatabasePath string

	// LogFile is the default JSON log file
	LogFile string
)

// Initialize sets up the global configuration directory
// It creates ~/.chatstress/ if it doesn't exist
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return initializeIn(filepath.Join(homeDir, ".chatstress"))
}

func initializeIn(dir string) error {
	ConfigDir = dir
	DatabasePath = filepath.Join(ConfigDir, "chatstress.db")
	LogFile = filepath.Join(ConfigDir, "chatstress.log")

	if err := os.MkdirAll(ConfigDir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ConfigDir, err)
	}
	return nil
}

// ExpandPath expands a leading ~/ to the home directory
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}
