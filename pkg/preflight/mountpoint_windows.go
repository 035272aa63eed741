//go:build windows

package preflight

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// IsMountPoint reports whether path is the root of a volume, either a drive
// root such as "D:\" or a volume mounted into a folder.
func IsMountPoint(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	p, err := windows.UTF16PtrFromString(abs)
	if err != nil {
		return false, err
	}
	buf := make([]uint16, windows.MAX_PATH+1)
	if err := windows.GetVolumePathName(p, &buf[0], uint32(len(buf))); err != nil {
		return false, fmt.Errorf("failed to get volume of %s: %w", abs, err)
	}
	volume := windows.UTF16ToString(buf)
	return strings.EqualFold(filepath.Clean(volume), filepath.Clean(abs)), nil
}
