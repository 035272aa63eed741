// Package engine drives the mirror: it runs passes back to back with a fixed
// pause in between until its context is cancelled.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/hook"
	"github.com/paulschiretz/pgl-mirror/pkg/lockfile"
	"github.com/paulschiretz/pgl-mirror/pkg/pathsync"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
	"github.com/paulschiretz/pgl-mirror/pkg/synclog"
)

// ErrPassIncomplete is returned in single-pass mode when some entries could not be mirrored.
var ErrPassIncomplete = errors.New("pass completed with failed entries")

// Runner owns the scheduling loop. Passes never overlap: the next one starts
// only after the previous pass finished and the interval elapsed.
type Runner struct {
	cfg    config.Config
	clock  clockwork.Clock
	log    *synclog.Log
	syncer *pathsync.PathSyncer
	hooks  *hook.HookExecutor
}

// NewRunner creates a Runner for a validated configuration.
func NewRunner(cfg config.Config, clock clockwork.Clock) *Runner {
	log := synclog.New(cfg.LogFile)
	return &Runner{
		cfg:    cfg,
		clock:  clock,
		log:    log,
		syncer: pathsync.NewPathSyncer(int64(cfg.Sync.BufferSizeKB), log, clock),
		hooks:  hook.NewHookExecutor(exec.CommandContext),
	}
}

// Run checks the paths, locks the replica and mirrors until ctx is cancelled,
// or after one pass in single-pass mode. Cancellation is reported as ctx.Err().
// A replica that is locked by another instance is not an error: Run returns nil.
func (r *Runner) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.preflight(); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	releaseLock, err := r.acquireReplicaLock(ctx)
	if err != nil {
		return err
	}
	if releaseLock == nil {
		return nil // Lock was already held, exit gracefully.
	}
	defer releaseLock()

	plan := r.plan()
	interval := time.Duration(r.cfg.Schedule.IntervalSeconds) * time.Second

	for pass := 1; ; pass++ {
		res, err := r.runPass(ctx, pass, plan)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				plog.Info("Mirror stopped", "pass", pass)
				return ctxErr
			}
			if plan.FailFast || r.cfg.Runtime.Once {
				return fmt.Errorf("pass %d failed: %w", pass, err)
			}
			plog.Error("Pass failed, retrying after the interval", "pass", pass, "error", err)
		} else {
			res.LogSummary(fmt.Sprintf("Pass %d completed", pass))
			if r.cfg.Runtime.Once {
				if res.Failed() > 0 {
					return fmt.Errorf("%w: %d", ErrPassIncomplete, res.Failed())
				}
				return nil
			}
		}

		plog.Debug("Waiting for next pass", "interval", interval)
		select {
		case <-ctx.Done():
			plog.Info("Mirror stopped", "passes", pass)
			return ctx.Err()
		case <-r.clock.After(interval):
		}
	}
}

// runPass runs the pre-pass hooks, makes sure the log exists (a log deleted
// between passes gets a fresh header), mirrors the tree once and runs the
// post-pass hooks.
func (r *Runner) runPass(ctx context.Context, pass int, plan *pathsync.Plan) (*pathsync.Result, error) {
	info := hook.PassInfo{Pass: pass, Source: r.cfg.Source, Replica: r.cfg.Replica}
	if err := r.runHooks(ctx, hook.PrePass, r.cfg.Hooks.PrePass, info); err != nil {
		return nil, fmt.Errorf("pre-pass hook failed: %w", err)
	}

	if !plan.DryRun {
		if err := r.log.Ensure(); err != nil {
			return nil, err
		}
	}
	res, err := r.syncer.Sync(ctx, r.cfg.Source, r.cfg.Replica, plan)

	info.Copied = res.FilesCopied
	info.Updated = res.FilesUpdated
	info.Failed = res.Failed()
	if hookErr := r.runHooks(ctx, hook.PostPass, r.cfg.Hooks.PostPass, info); hookErr != nil && err == nil {
		err = fmt.Errorf("post-pass hook failed: %w", hookErr)
	}
	return res, err
}

func (r *Runner) runHooks(ctx context.Context, stage hook.Stage, commands []string, info hook.PassInfo) error {
	err := r.hooks.Run(ctx, stage, &hook.Plan{
		Commands: commands,
		DryRun:   r.cfg.Runtime.DryRun,
		FailFast: r.cfg.Sync.FailFast,
	}, info)
	if errors.Is(err, hook.ErrNothingToExecute) {
		return nil
	}
	return err
}

// plan protects the sync log and the replica lock. The lock is held by inode:
// a source file of the same name renamed over it would detach the lock from
// its path and be deleted on release.
func (r *Runner) plan() *pathsync.Plan {
	return &pathsync.Plan{
		RetryCount:     r.cfg.Sync.RetryCount,
		RetryWait:      time.Duration(r.cfg.Sync.RetryWaitSeconds) * time.Second,
		ExcludeFiles:   r.cfg.Sync.ExcludeFiles,
		ExcludeDirs:    r.cfg.Sync.ExcludeDirs,
		ProtectedPaths: []string{r.cfg.LogFile, filepath.Join(r.cfg.Replica, lockfile.LockFileName)},
		DryRun:         r.cfg.Runtime.DryRun,
		FailFast:       r.cfg.Sync.FailFast,
	}
}

func (r *Runner) preflight() error {
	if err := preflight.CheckSourceAccessible(r.cfg.Source); err != nil {
		return err
	}
	if err := preflight.CheckReplicaAccessible(r.cfg.Replica); err != nil {
		return err
	}
	if r.cfg.Sync.RequireMountedReplica {
		if err := preflight.CheckReplicaMounted(r.cfg.Replica); err != nil {
			return err
		}
	}
	return preflight.CheckLogFileWritable(r.cfg.LogFile)
}

// acquireReplicaLock acquires a file lock within the replica directory.
// It returns a release function that must be called to unlock the directory,
// or nil without an error when another instance already mirrors into it.
func (r *Runner) acquireReplicaLock(ctx context.Context) (func(), error) {
	appID := fmt.Sprintf("pgl-mirror:%s", r.cfg.Source)

	plog.Debug("Attempting to acquire lock", "path", r.cfg.Replica)
	lock, err := lockfile.Acquire(ctx, r.cfg.Replica, appID)
	if err != nil {
		var lockErr *lockfile.ErrLockActive
		if errors.As(err, &lockErr) {
			plog.Warn("Another mirror is already running for this replica, exiting.", "details", lockErr.Error())
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired successfully.")

	return func() {
		if err := lock.Release(); err != nil {
			plog.Warn("Failed to release lock", "error", err)
		}
	}, nil
}
