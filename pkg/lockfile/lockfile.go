package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// LockFileName is the name of the lock file created in the replica directory.
// The '~' prefix marks it as temporary.
const LockFileName = ".~pgl-mirror.lock"

// LockContent defines the structure of the data written to the lock file.
// It is informational only: the lock itself is the OS-level file lock, which
// the kernel drops when the holding process dies, so there are no stale locks.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquiredAt"`
	AppID      string    `json:"appID"`
}

// ErrLockActive is a structured error returned when a lock is already held by another process.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	AppID     string
	TimeSince time.Duration
}

// Error implements the error interface for ErrLockActive.
func (e *ErrLockActive) Error() string {
	if e.PID == 0 {
		return "lock is active, held by another process"
	}
	// Truncate for cleaner output, e.g., "3m2s" instead of "3m2.123456789s".
	return fmt.Sprintf("lock is active, held by PID %d on host '%s' (App: %s), acquired %s ago", e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

// Lock is an acquired exclusive lock on a directory.
type Lock struct {
	flock *flock.Flock
	mu    sync.Mutex
	// We keep track if we actually hold the lock to prevent double release
	held bool
}

// Acquire takes the exclusive lock for dirPath without waiting.
// It returns (nil, *ErrLockActive) if another process holds the lock,
// and (nil, error) for any other failure.
func Acquire(ctx context.Context, dirPath string, appID string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	absLockFilePath := filepath.Join(dirPath, LockFileName)
	fl := flock.New(absLockFilePath)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to access lock file %s: %w", absLockFilePath, err)
	}
	if !locked {
		lockErr := &ErrLockActive{}
		if content, readErr := readLockContent(absLockFilePath); readErr == nil {
			lockErr.PID = content.PID
			lockErr.Hostname = content.Hostname
			lockErr.AppID = content.AppID
			lockErr.TimeSince = time.Since(content.AcquiredAt)
		}
		return nil, lockErr
	}

	hostname, _ := os.Hostname()
	content := LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		AcquiredAt: time.Now().UTC(),
		AppID:      appID,
	}
	// Windows enforces byte-range locks on other handles, so the holder info may not be writable there.
	if err := writeLockContent(absLockFilePath, content); err != nil {
		plog.Debug("Could not record lock holder", "path", absLockFilePath, "error", err)
	}

	return &Lock{flock: fl, held: true}, nil
}

// Path returns the path of the lock file.
func (l *Lock) Path() string {
	return l.flock.Path()
}

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.flock.Path(), err)
	}
	// Windows refuses to delete a file with an open handle, so remove after unlocking.
	if err := os.Remove(l.flock.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file %s: %w", l.flock.Path(), err)
	}
	return nil
}

func writeLockContent(path string, content LockContent) error {
	data, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	return os.WriteFile(path, data, util.UserWritableFilePerms)
}

// ErrCorruptLockFile indicates that the lock file on disk is empty or not valid JSON.
var ErrCorruptLockFile = errors.New("lock file is corrupt or empty")

func readLockContent(path string) (LockContent, error) {
	var content LockContent
	data, err := os.ReadFile(path)
	if err != nil {
		return content, err
	}
	if len(data) == 0 {
		return content, ErrCorruptLockFile
	}
	if err := json.Unmarshal(data, &content); err != nil {
		return content, fmt.Errorf("%w: %v", ErrCorruptLockFile, err)
	}
	return content, nil
}
