// Package synclog maintains the human-readable audit trail of a mirror.
//
// The file starts with a fixed header and afterwards only ever grows: every
// file copied into the replica adds exactly one line. Lines are never
// rewritten or removed.
package synclog

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Header is the first line of every sync log.
const Header = "Sync log:\n"

// Reason describes why a file was copied.
type Reason int

const (
	// Missing means the file did not exist in the replica.
	Missing Reason = iota
	// ContentMismatch means the replica file differed in size or MD5 digest.
	ContentMismatch
)

var reasonToString = map[Reason]string{
	Missing:         "missing",
	ContentMismatch: "content mismatch",
}

// String returns the string representation of a Reason.
func (r Reason) String() string {
	if str, ok := reasonToString[r]; ok {
		return str
	}
	return fmt.Sprintf("unknown_reason(%d)", r)
}

// Record is a single log line. It is immutable once written.
type Record struct {
	// Name is the base name of the copied file.
	Name   string
	Reason Reason
}

// Line renders the record exactly as it is stored, including the trailing newline.
func (r Record) Line() string {
	switch r.Reason {
	case ContentMismatch:
		return fmt.Sprintf("Copied file '%s' from source to replica because the file sizes or MD5 hashes were different.\n", r.Name)
	default:
		return fmt.Sprintf("Copied file '%s' from source to replica.\n", r.Name)
	}
}

// Log is an append-only text log at a fixed path.
type Log struct {
	path string
}

// New returns a Log for path. Nothing is touched on disk until Ensure or Append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the location of the log file.
func (l *Log) Path() string {
	return l.path
}

// Ensure creates the log with its header if it does not exist yet.
// An existing log is left untouched, whatever its content.
func (l *Log) Ensure() error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.UserWritableFilePerms)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("failed to create sync log %s: %w", l.path, err)
	}
	if _, err := f.WriteString(Header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write sync log header to %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close sync log %s: %w", l.path, err)
	}
	return nil
}

// Append writes one record to the end of the log. The file is opened and
// closed for every record so external rotation or deletion is picked up.
func (l *Log) Append(rec Record) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, util.UserWritableFilePerms)
	if err != nil {
		return fmt.Errorf("failed to open sync log %s: %w", l.path, err)
	}
	if _, err := f.WriteString(rec.Line()); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to sync log %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close sync log %s: %w", l.path, err)
	}
	return nil
}
