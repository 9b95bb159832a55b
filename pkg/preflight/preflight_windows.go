//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// platformValidateMountPoint verifies that the drive or network share root
// for a given path exists, so a disconnected drive fails fast instead of
// during the archive write.
func platformValidateMountPoint(path string) error {
	volume := filepath.VolumeName(path)
	if volume == "" {
		return nil
	}

	checkVol := volume
	if !strings.HasSuffix(checkVol, string(filepath.Separator)) {
		checkVol += string(filepath.Separator)
	}
	checkVol = filepath.Clean(checkVol)

	if _, err := os.Stat(checkVol); os.IsNotExist(err) {
		return fmt.Errorf("volume root does not exist: %s. Ensure the drive is connected", checkVol)
	}
	return nil
}

// platformFreeSpace returns the bytes available to the calling user on the
// volume holding path.
func platformFreeSpace(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var freeToCaller, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeToCaller, &total, &free); err != nil {
		return 0, err
	}
	return freeToCaller, nil
}
