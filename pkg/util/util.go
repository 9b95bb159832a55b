// Package util holds small helpers shared across the module: permission
// constants, path normalization, and generic map utilities.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Permission constants for file and directory modes.
const (
	// UserWritableDirPerms represents the standard permissions for newly created directories (rwxr-xr-x).
	UserWritableDirPerms os.FileMode = 0755
	// UserWritableFilePerms represents the standard permissions for newly created files (rw-r--r--).
	UserWritableFilePerms os.FileMode = 0644
	// UserGroupWritableFilePerms represents permissions for files that should be writable by the user and group (rw-rw-r--).
	UserGroupWritableFilePerms os.FileMode = 0664
)

// NormalizePath converts a filesystem path into the canonical forward-slash
// form used for pattern matching and archive entry names.
func NormalizePath(p string) string {
	return filepath.ToSlash(p)
}

// TrimRoot removes trailing separators from a root path so prefix
// comparisons behave consistently regardless of how the root was written.
func TrimRoot(root string) string {
	trimmed := strings.TrimRight(NormalizePath(root), "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

// ExpandPath expands the tilde (~) prefix in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil // No tilde, return as-is.
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	// Replace the tilde with the home directory.
	return filepath.Join(home, path[1:]), nil
}

// InvertMap takes a map[K]V and returns a map[V]K.
// It's a generic helper for creating reverse lookup maps for enums.
func InvertMap[K comparable, V comparable](m map[K]V) map[V]K {
	inv := make(map[V]K, len(m))
	for k, v := range m {
		inv[v] = k
	}
	return inv
}
