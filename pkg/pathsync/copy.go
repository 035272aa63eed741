package pathsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// copyFileSafe replaces replicaPath with the full content of srcPath.
// The data goes to a temporary file in the replica directory that is renamed
// over the destination, so a reader never sees a half-written replica file.
// It retries retryCount times and returns the number of bytes written.
func (s *PathSyncer) copyFileSafe(ctx context.Context, srcPath, replicaPath string, mode os.FileMode, retryCount int, retryWait time.Duration) (int64, error) {
	var lastErr error
	for i := 0; i < retryCount+1; i++ {
		if i > 0 {
			plog.Warn("Retrying file copy", "file", srcPath, "attempt", fmt.Sprintf("%d/%d", i, retryCount), "after", retryWait)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-s.clock.After(retryWait):
			}
		}

		var written int64
		written, lastErr = s.copyFileOnce(srcPath, replicaPath, mode)
		if lastErr == nil {
			return written, nil
		}
	}
	return 0, fmt.Errorf("failed to copy %s after %d retries: %w", srcPath, retryCount, lastErr)
}

func (s *PathSyncer) copyFileOnce(srcPath, replicaPath string, mode os.FileMode) (written int64, err error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open source file %s: %w", srcPath, err)
	}
	defer in.Close()

	replicaDir := filepath.Dir(replicaPath)
	out, err := os.CreateTemp(replicaDir, "pgl-mirror-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file in %s: %w", replicaDir, err)
	}
	defer out.Close() // Ensure closed on error.

	tempPath := out.Name()
	// Cleared after a successful rename.
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	if written, err = s.ioBufferPool.Copy(out, in); err != nil {
		return 0, fmt.Errorf("failed to copy content from %s to %s: %w", srcPath, tempPath, err)
	}

	// The owner must keep write access, otherwise the next pass could not replace the file.
	if err := out.Chmod(util.WithUserWritePermission(mode.Perm())); err != nil {
		return 0, fmt.Errorf("failed to set permissions on temporary file %s: %w", tempPath, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, replicaPath); err != nil {
		return 0, fmt.Errorf("failed to move %s into place: %w", replicaPath, err)
	}
	tempPath = ""
	return written, nil
}

// createDir creates a single missing replica directory. Its parent is
// guaranteed to exist because the walk creates directories top-down.
// The owner always gets full access so the directory can be populated.
func createDir(replicaPath string, mode os.FileMode) error {
	if err := os.Mkdir(replicaPath, mode.Perm()|util.UserFullDirPerms); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create directory %s: %w", replicaPath, err)
	}
	return nil
}
