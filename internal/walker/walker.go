package walker

import (
	"os"
	"path"
	"path/filepath"
	"sort"
)

// Kind classifies a discovered filesystem entry.
type Kind string

const (
	// KindRegular is a plain file that can be archived.
	KindRegular Kind = "regular"
	// KindSymlink is a symbolic link that will not be archived
	// (either by policy, or because its target is not a regular file).
	KindSymlink Kind = "symlink"
	// KindSpecial is a non-regular file (fifo, socket, device).
	KindSpecial Kind = "special"
	// KindUnreadable is a path the walk could not stat or descend into.
	KindUnreadable Kind = "unreadable"
)

// Entry is one filesystem object discovered under the source root.
type Entry struct {
	Path        string // absolute path on disk
	ArchivePath string // forward-slash path relative to the root
	Size        int64  // size in bytes (0 unless KindRegular)
	Kind        Kind
}

// Options control discovery behavior.
type Options struct {
	// FollowSymlinks resolves symlinks whose target is a regular file
	// and discovers them as KindRegular under the link's own path.
	// Symlinks to directories are never followed.
	FollowSymlinks bool
	// Exclude holds path.Match patterns. A pattern excludes an entry
	// when it matches either the entry's base name or its full
	// archive-relative path.
	Exclude []string
}

// Discover walks the directory tree rooted at root and returns every
// non-directory entry, classified by kind and sorted lexicographically
// by archive-relative path. Unreadable paths are returned as
// KindUnreadable entries rather than failing the walk.
func Discover(root string, opts Options) ([]Entry, error) {
	var entries []Entry

	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if p == root {
			if err != nil {
				return err
			}
			return nil
		}

		relPath, relErr := ArchivePath(root, p)
		if relErr != nil {
			return relErr
		}

		if IsExcluded(relPath, opts.Exclude) {
			if err == nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Walk reports unreadable directories and unstatable files
		// through err; record them and keep going.
		if err != nil {
			entries = append(entries, Entry{
				Path:        p,
				ArchivePath: relPath,
				Kind:        KindUnreadable,
			})
			return nil
		}

		if info.IsDir() {
			return nil
		}

		entries = append(entries, classify(p, relPath, info, opts))
		return nil
	})

	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ArchivePath < entries[j].ArchivePath
	})

	return entries, nil
}

// classify determines the kind of a non-directory entry.
func classify(p, relPath string, info os.FileInfo, opts Options) Entry {
	entry := Entry{Path: p, ArchivePath: relPath}

	switch {
	case info.Mode().IsRegular():
		entry.Kind = KindRegular
		entry.Size = info.Size()

	case info.Mode()&os.ModeSymlink != 0:
		entry.Kind = KindSymlink
		if opts.FollowSymlinks {
			// Stat follows the link; a dangling link stays KindSymlink.
			target, err := os.Stat(p)
			if err == nil && target.Mode().IsRegular() {
				entry.Kind = KindRegular
				entry.Size = target.Size()
			}
		}

	default:
		entry.Kind = KindSpecial
	}

	return entry
}

// ArchivePath returns the archive-relative path for target under root:
// relative to root, forward-slash separated regardless of host
// convention, no leading slash.
func ArchivePath(root, target string) (string, error) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsExcluded returns true if any pattern matches the entry's base name
// or its full archive-relative path. Malformed patterns never match.
func IsExcluded(archivePath string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, path.Base(archivePath)); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pattern, archivePath); err == nil && ok {
			return true
		}
	}
	return false
}
