package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName is the directory name used under the user cache and data dirs.
const AppName = "docexec"

// CacheDir returns the root of the document mirrors, <UserCacheDir>/docexec.
func CacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user cache directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DataDir returns the root of persisted run results. It honors
// XDG_DATA_HOME and falls back to ~/.local/share/docexec.
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", AppName), nil
}
