//go:build !windows

package preflight

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/snapvault/snapvault/pkg/plog"
)

// platformValidateMountPoint warns when the destination resides on the root
// filesystem. A destination that was meant to be an external volume but
// shares the root device is likely an unmounted ghost directory. Local
// destinations are legitimate, so this stays a warning, not an error.
func platformValidateMountPoint(path string) error {
	// Destinations under the home directory are usually intentional.
	homeDir, _ := os.UserHomeDir()
	if homeDir != "" && strings.HasPrefix(path, homeDir) {
		return nil
	}

	rootInfo, err := os.Stat("/")
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}
	rootStat, ok := rootInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	pathInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat destination path: %w", err)
	}
	pathStat, ok := pathInfo.Sys().(*unix.Stat_t)
	if !ok {
		return fmt.Errorf("unsupported platform for unix.Stat_t")
	}

	if pathStat.Dev == rootStat.Dev && path != "/" {
		plog.Warn("Destination is on the system disk", "path", path)
	}
	return nil
}

// platformFreeSpace returns the bytes available to an unprivileged caller
// on the volume holding path.
func platformFreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
