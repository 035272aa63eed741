package pathsync

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileEntry is one entry of a source directory, paired with where it belongs in the replica.
// Entries are discovered fresh on every pass and never cached.
type FileEntry struct {
	// Name is the entry's base name.
	Name string
	// RelPath is the slash separated path relative to the sync root.
	RelPath string
	// SrcPath and ReplicaPath are the absolute paths on both sides.
	SrcPath     string
	ReplicaPath string
	// Info describes the source entry, with symlinks already resolved.
	Info fs.FileInfo
}

// IsDir reports whether the source entry is a directory.
func (e FileEntry) IsDir() bool {
	return e.Info.IsDir()
}

// dirFrame is one level of the explicit traversal stack: a directory pair,
// its sorted entries and the index of the next entry to process.
type dirFrame struct {
	srcDir     string
	replicaDir string
	relDir     string
	entries    []os.DirEntry
	next       int
}

// done reports whether every entry of the frame has been processed.
func (f *dirFrame) done() bool {
	return f.next >= len(f.entries)
}

// entry builds the FileEntry for the frame's current position without resolving its info.
func (f *dirFrame) entry(name string) FileEntry {
	rel := name
	if f.relDir != "" {
		rel = f.relDir + "/" + name
	}
	return FileEntry{
		Name:        name,
		RelPath:     rel,
		SrcPath:     filepath.Join(f.srcDir, name),
		ReplicaPath: filepath.Join(f.replicaDir, name),
	}
}
