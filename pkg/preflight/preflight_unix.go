//go:build !windows

package preflight

import (
	"golang.org/x/sys/unix"
)

// checkReadable asks the kernel whether the real user may read and traverse path.
// Directories need the execute bit to be entered.
func checkReadable(path string) error {
	return unix.Access(path, unix.R_OK|unix.X_OK)
}

// checkWritable asks the kernel whether the real user may write to path.
func checkWritable(path string) error {
	return unix.Access(path, unix.W_OK)
}
