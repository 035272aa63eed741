package pathsync

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/synclog"
)

// walker holds the state of a single pass.
type walker struct {
	syncer *PathSyncer
	plan   *Plan
	res    *Result

	fileExcludes exclusionSet
	dirExcludes  exclusionSet
	protected    map[string]struct{}

	// stack replaces recursion: the top frame is the directory being processed.
	// A directory is pushed as soon as it is reached, so its subtree is finished
	// before the next sibling, exactly like a recursive pre-order walk.
	stack []*dirFrame
}

func (w *walker) walk(ctx context.Context, source, replica string) error {
	entries, err := os.ReadDir(source)
	if err != nil {
		return fmt.Errorf("failed to list source directory %s: %w", source, err)
	}
	w.stack = append(w.stack, &dirFrame{srcDir: source, replicaDir: replica, entries: entries})

	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		if top.done() {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		de := top.entries[top.next]
		top.next++
		if err := w.visit(ctx, top, de); err != nil {
			return err
		}
	}
	return nil
}

// visit handles one source entry. A non-nil error aborts the pass.
func (w *walker) visit(ctx context.Context, frame *dirFrame, de os.DirEntry) error {
	e := frame.entry(de.Name())

	if _, ok := w.protected[e.SrcPath]; ok {
		plog.Debug("Skipping protected path", "path", e.RelPath)
		w.res.Excluded++
		return nil
	}
	if _, ok := w.protected[e.ReplicaPath]; ok {
		plog.Warn("Skipping entry that would overwrite a protected replica file", "path", e.RelPath, "replica", e.ReplicaPath)
		w.res.Excluded++
		return nil
	}

	info, err := resolveInfo(e.SrcPath, de)
	if err != nil {
		return w.fail(e.RelPath, "stat", err)
	}
	e.Info = info

	if de.Type()&fs.ModeSymlink != 0 && info.IsDir() {
		plog.Warn("Skipping symlink to directory", "path", e.RelPath)
		w.res.Skipped++
		return nil
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		plog.Debug("Skipping special file", "path", e.RelPath, "mode", info.Mode().Type().String())
		w.res.Skipped++
		return nil
	}
	if w.excluded(e) {
		plog.Debug("Excluding entry", "path", e.RelPath)
		w.res.Excluded++
		return nil
	}

	replicaInfo, err := os.Stat(e.ReplicaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return w.handleMissing(ctx, e)
		}
		return w.fail(e.RelPath, "stat", err)
	}

	if e.IsDir() {
		if !replicaInfo.IsDir() {
			return w.fail(e.RelPath, "conflict", fmt.Errorf("source is a directory but replica %s is not", e.ReplicaPath))
		}
		plog.Debug("Descending into directory", "path", e.RelPath, "decision", DirectoryDescend)
		return w.descend(e)
	}
	if replicaInfo.IsDir() {
		return w.fail(e.RelPath, "conflict", fmt.Errorf("source is a file but replica %s is a directory", e.ReplicaPath))
	}

	decision, hashed, err := w.syncer.compareFiles(ctx, e.SrcPath, info.Size(), e.ReplicaPath, replicaInfo.Size())
	w.res.BytesHashed += hashed
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return w.fail(e.RelPath, "compare", err)
	}
	if decision == InSync {
		plog.Debug("File up to date", "path", e.RelPath, "decision", InSync)
		w.res.FilesUpToDate++
		return nil
	}
	return w.copy(ctx, e, decision)
}

func (w *walker) handleMissing(ctx context.Context, e FileEntry) error {
	if !e.IsDir() {
		return w.copy(ctx, e, Missing)
	}

	if w.plan.DryRun {
		plog.Notice("[DRY RUN] Would create directory", "path", e.RelPath, "decision", Missing)
	} else {
		if err := createDir(e.ReplicaPath, e.Info.Mode()); err != nil {
			return w.fail(e.RelPath, "mkdir", err)
		}
		plog.Notice("Created directory", "path", e.RelPath, "decision", Missing)
	}
	w.res.DirsCreated++
	return w.descend(e)
}

func (w *walker) copy(ctx context.Context, e FileEntry, decision Decision) error {
	reason := synclog.Missing
	if decision == ContentMismatch {
		reason = synclog.ContentMismatch
	}

	if w.plan.DryRun {
		plog.Notice("[DRY RUN] Would copy file", "path", e.RelPath, "reason", decision)
	} else {
		written, err := w.syncer.copyFileSafe(ctx, e.SrcPath, e.ReplicaPath, e.Info.Mode(), w.plan.RetryCount, w.plan.RetryWait)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return w.fail(e.RelPath, "copy", err)
		}
		w.res.BytesWritten += written

		// The log is the audit trail of the replica: losing a record aborts the pass.
		if err := w.syncer.log.Append(synclog.Record{Name: e.Name, Reason: reason}); err != nil {
			return err
		}
		plog.Info("Copied file", "path", e.RelPath, "reason", decision)
	}

	if decision == Missing {
		w.res.FilesCopied++
	} else {
		w.res.FilesUpdated++
	}
	return nil
}

// descend lists a source directory and pushes it onto the stack.
func (w *walker) descend(e FileEntry) error {
	entries, err := os.ReadDir(e.SrcPath)
	if err != nil {
		return w.fail(e.RelPath, "list", err)
	}
	w.stack = append(w.stack, &dirFrame{
		srcDir:     e.SrcPath,
		replicaDir: e.ReplicaPath,
		relDir:     e.RelPath,
		entries:    entries,
	})
	return nil
}

func (w *walker) excluded(e FileEntry) bool {
	if e.IsDir() {
		return !w.dirExcludes.empty() && w.dirExcludes.matches(e.RelPath, e.Name)
	}
	return !w.fileExcludes.empty() && w.fileExcludes.matches(e.RelPath, e.Name)
}

// fail records an entry failure. It only returns an error when fail-fast is enabled.
func (w *walker) fail(relPath, op string, err error) error {
	entryErr := &EntryError{RelPath: relPath, Op: op, Err: err}
	w.res.Failures = append(w.res.Failures, entryErr)
	plog.Warn("Failed to mirror entry", "path", relPath, "op", op, "error", err)
	if w.plan.FailFast {
		return entryErr
	}
	return nil
}

// resolveInfo returns the entry's info, following symlinks.
func resolveInfo(path string, de os.DirEntry) (fs.FileInfo, error) {
	if de.Type()&fs.ModeSymlink != 0 {
		return os.Stat(path)
	}
	return de.Info()
}
