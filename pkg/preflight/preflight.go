// Package preflight provides checks that run before the first mirror pass.
// They are stateless and never modify the filesystem, so a failing check
// leaves source, replica and log exactly as they were.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckSourceAccessible validates that the source path exists, is a directory,
// and can be listed by the current user.
func CheckSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	if err := checkReadable(srcPath); err != nil {
		return fmt.Errorf("source directory %s is not readable: %w", srcPath, err)
	}
	return nil
}

// CheckReplicaAccessible validates that the replica exists, is a directory and
// is writable. The replica is never created implicitly: a missing replica usually
// means an unmounted drive, and mirroring into the mount point would fill the system disk.
func CheckReplicaAccessible(replicaPath string) error {
	info, err := os.Stat(replicaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("replica directory %s does not exist", replicaPath)
		}
		return fmt.Errorf("cannot stat replica directory %s: %w", replicaPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("replica path %s is not a directory", replicaPath)
	}
	if err := checkWritable(replicaPath); err != nil {
		return fmt.Errorf("replica directory %s is not writable: %w", replicaPath, err)
	}
	return nil
}

// CheckReplicaMounted validates that the replica is the root of a mounted
// filesystem. The directory a drive is mounted on still exists while the drive
// is detached, so CheckReplicaAccessible alone would let a pass fill the
// disk that holds the empty mount point.
func CheckReplicaMounted(replicaPath string) error {
	mounted, err := IsMountPoint(replicaPath)
	if err != nil {
		return fmt.Errorf("cannot check mount state of replica %s: %w", replicaPath, err)
	}
	if !mounted {
		return fmt.Errorf("replica directory %s is not a mount point. Ensure the replica drive is mounted", replicaPath)
	}
	return nil
}

// CheckLogFileWritable validates that the sync log can be appended to, or,
// if it does not exist yet, that it can be created in its parent directory.
func CheckLogFileWritable(logPath string) error {
	info, err := os.Stat(logPath)
	if err == nil {
		if info.IsDir() {
			return fmt.Errorf("log path %s is a directory", logPath)
		}
		if err := checkWritable(logPath); err != nil {
			return fmt.Errorf("log file %s is not writable: %w", logPath, err)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("cannot stat log file %s: %w", logPath, err)
	}

	parentDir := filepath.Dir(logPath)
	parentInfo, err := os.Stat(parentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("log directory %s does not exist", parentDir)
		}
		return fmt.Errorf("cannot access log directory %s: %w", parentDir, err)
	}
	if !parentInfo.IsDir() {
		return fmt.Errorf("log directory %s is not a directory", parentDir)
	}
	if err := checkWritable(parentDir); err != nil {
		return fmt.Errorf("log directory %s is not writable: %w", parentDir, err)
	}
	return nil
}
