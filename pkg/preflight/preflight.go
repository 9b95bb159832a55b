// Package preflight validates the filesystem state before a backup or
// restore touches it. The checks are stateless except for the writability
// probe, which creates and removes one temp file.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckSourceAccessible verifies a base directory exists and is a directory.
func CheckSourceAccessible(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// CheckDestAccessible verifies the archive destination is usable before any
// data is written. If the path does not exist yet, its deepest existing
// ancestor is validated instead, which catches the ghost-directory case
// where a mount point exists but nothing is mounted on it.
func CheckDestAccessible(destPath string) error {
	info, err := os.Stat(destPath)
	if os.IsNotExist(err) {
		ancestor := destPath
		for {
			parent := filepath.Dir(ancestor)
			if parent == ancestor {
				break
			}
			if _, err := os.Stat(parent); err == nil {
				ancestor = parent
				break
			}
			ancestor = parent
		}
		return platformValidateMountPoint(ancestor)
	} else if err != nil {
		return fmt.Errorf("cannot access destination path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("destination path exists but is not a directory: %s", destPath)
	}
	return platformValidateMountPoint(destPath)
}

// CheckDestWritable ensures the destination directory can be created and is
// writable by creating and deleting a probe file.
func CheckDestWritable(destPath string) error {
	if err := os.MkdirAll(destPath, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory %s: %w", destPath, err)
	}

	probe := filepath.Join(destPath, ".snapvault-writetest.tmp")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("destination directory %s is not writable: %w", destPath, err)
	}
	f.Close()
	_ = os.Remove(probe)
	return nil
}

// CheckFreeSpace verifies the destination volume has at least requiredBytes
// available. The caller typically passes the uncompressed total of the
// matched files, which over-estimates the final archive size.
func CheckFreeSpace(destPath string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}
	free, err := platformFreeSpace(destPath)
	if err != nil {
		return fmt.Errorf("cannot determine free space for %s: %w", destPath, err)
	}
	if free < uint64(requiredBytes) {
		return fmt.Errorf("not enough free space on %s: need %d bytes, have %d", destPath, requiredBytes, free)
	}
	return nil
}
