package pathsync

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// EntryError records a failure on a single entry. The pass continues past it
// unless fail-fast is enabled.
type EntryError struct {
	RelPath string
	// Op names the step that failed: "list", "stat", "compare", "copy", "mkdir" or "conflict".
	Op  string
	Err error
}

func (e *EntryError) Error() string {
	path := e.RelPath
	if path == "" {
		path = "."
	}
	return fmt.Sprintf("%s %s: %v", e.Op, path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Result summarizes one pass. A pass runs on a single goroutine so plain counters suffice.
type Result struct {
	FilesCopied   int64 // missing in replica
	FilesUpdated  int64 // content mismatch
	FilesUpToDate int64
	DirsCreated   int64
	Excluded      int64
	Skipped       int64 // symlinked directories and special files
	BytesHashed   int64
	BytesWritten  int64

	Failures []*EntryError

	Start    time.Time
	Duration time.Duration
}

// Failed returns the number of entries that could not be mirrored.
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Changed reports whether the pass modified the replica (or would have, in a dry run).
func (r *Result) Changed() bool {
	return r.FilesCopied+r.FilesUpdated+r.DirsCreated > 0
}

// LogSummary writes the pass summary to the process log.
func (r *Result) LogSummary(msg string) {
	args := []any{
		"copied", r.FilesCopied,
		"updated", r.FilesUpdated,
		"up_to_date", r.FilesUpToDate,
		"dirs_created", r.DirsCreated,
		"excluded", r.Excluded,
		"skipped", r.Skipped,
		"failed", r.Failed(),
		"hashed", humanize.Bytes(uint64(r.BytesHashed)),
		"written", humanize.Bytes(uint64(r.BytesWritten)),
		"duration", r.Duration.Truncate(time.Millisecond),
	}
	if r.Failed() > 0 {
		plog.Warn(msg, args...)
		return
	}
	plog.Info(msg, args...)
}
