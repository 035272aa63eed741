// Package pathsync mirrors a source directory tree into a replica directory.
//
// A pass walks the source depth first. Every regular file that is missing in
// the replica, or whose size or MD5 digest differs, is copied; every missing
// directory is created and populated in the same pass. Entries that exist
// only in the replica are never touched.
package pathsync

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/pool"
	"github.com/paulschiretz/pgl-mirror/pkg/synclog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Plan holds the per-pass settings.
type Plan struct {
	RetryCount int
	RetryWait  time.Duration

	ExcludeFiles []string
	ExcludeDirs  []string
	// ProtectedPaths are never read from the source nor written in the replica,
	// e.g. a sync log kept inside the source or the lock file in the replica root.
	ProtectedPaths []string

	DryRun   bool
	FailFast bool
}

// PathSyncer runs mirror passes. It is not safe for concurrent passes.
type PathSyncer struct {
	ioBufferPool *pool.FixedBufferPool
	log          *synclog.Log
	clock        clockwork.Clock
}

// NewPathSyncer creates a PathSyncer that uses bufferSizeKB sized I/O buffers
// and records every copied file in log. Copy retries wait on clock.
func NewPathSyncer(bufferSizeKB int64, log *synclog.Log, clock clockwork.Clock) *PathSyncer {
	return &PathSyncer{
		ioBufferPool: pool.NewFixedBufferPool(bufferSizeKB * 1024),
		log:          log,
		clock:        clock,
	}
}

// Sync runs one pass from source into replica. Both must be existing directories.
//
// Failures on individual entries are collected in the Result and the pass
// continues, unless plan.FailFast is set. A returned error means the pass was
// aborted: the source root could not be listed, the sync log could not be
// written, fail-fast tripped, or ctx was cancelled. The Result is never nil.
func (s *PathSyncer) Sync(ctx context.Context, source, replica string, plan *Plan) (*Result, error) {
	res := &Result{Start: time.Now()}
	defer func() { res.Duration = time.Since(res.Start) }()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// Entry paths are built below the resolved roots, so protected paths must
	// be resolved the same way to compare equal.
	absSource, err := util.ResolvePath(source)
	if err != nil {
		return res, fmt.Errorf("failed to resolve source path %s: %w", source, err)
	}
	absReplica, err := util.ResolvePath(replica)
	if err != nil {
		return res, fmt.Errorf("failed to resolve replica path %s: %w", replica, err)
	}

	w := &walker{
		syncer:       s,
		plan:         plan,
		res:          res,
		fileExcludes: makeExclusionSet(plan.ExcludeFiles),
		dirExcludes:  makeExclusionSet(plan.ExcludeDirs),
		protected:    make(map[string]struct{}, len(plan.ProtectedPaths)),
	}
	for _, p := range plan.ProtectedPaths {
		resolved, err := util.ResolvePath(p)
		if err != nil {
			plog.Debug("Could not resolve protected path, comparing it as given", "path", p, "error", err)
			if resolved, err = filepath.Abs(p); err != nil {
				continue
			}
		}
		w.protected[filepath.Clean(resolved)] = struct{}{}
	}

	if plan.DryRun {
		plog.Notice("[DRY RUN] No changes will be made to the replica or the sync log")
	}
	plog.Debug("Starting pass", "source", absSource, "replica", absReplica)

	return res, w.walk(ctx, absSource, absReplica)
}
