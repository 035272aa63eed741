//go:build !windows

package preflight

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// IsMountPoint reports whether path is the root of a mounted filesystem,
// that is, whether it lives on a different device than its parent directory.
// The filesystem root always counts as a mount point.
func IsMountPoint(path string) (bool, error) {
	path = filepath.Clean(path)
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	parent := filepath.Dir(path)
	if parent == path {
		return true, nil
	}
	var parentSt unix.Stat_t
	if err := unix.Stat(parent, &parentSt); err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", parent, err)
	}
	return st.Dev != parentSt.Dev, nil
}
