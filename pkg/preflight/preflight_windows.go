//go:build windows

package preflight

import (
	"fmt"
	"os"
)

// checkReadable opens path for reading. For directories this verifies that it can be listed.
func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// checkWritable probes write access. ACLs make mode bits meaningless on Windows,
// so directories are probed with a temporary file and files are opened for append.
func checkWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			return err
		}
		return f.Close()
	}

	f, err := os.CreateTemp(path, ".pgl-mirror-writetest-*.tmp")
	if err != nil {
		return fmt.Errorf("write probe failed: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
