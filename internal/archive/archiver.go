package archive

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zipsum/zipsum/internal/manifest"
	"github.com/zipsum/zipsum/internal/walker"
)

// DefaultChunkSize bounds the streaming buffer when no explicit chunk
// size is configured.
const DefaultChunkSize = 64 << 20 // 64 MiB

// Sentinel errors for missing inputs. Callers match them with errors.Is.
var (
	ErrSourceNotFound   = errors.New("source directory not found")
	ErrArchiveNotFound  = errors.New("archive not found")
	ErrManifestNotFound = errors.New("manifest not found")
)

// Options control a single archive run.
type Options struct {
	Source         string
	Archive        string
	Manifest       string
	ChunkSize      int64
	FollowSymlinks bool
	Exclude        []string
	DryRun         bool
}

// Archiver streams a directory tree into an uncompressed zip container
// and records a SHA-256 digest for every stored file.
type Archiver struct {
	opts     Options
	logger   *slog.Logger
	progress Progress
}

// NewArchiver creates a new archiver. progress may be nil.
func NewArchiver(opts Options, logger *slog.Logger, progress Progress) *Archiver {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Archiver{
		opts:     opts,
		logger:   logger,
		progress: progress,
	}
}

// Run executes the complete archive process
func (a *Archiver) Run(ctx context.Context) (*Summary, error) {
	info, err := os.Stat(a.opts.Source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, a.opts.Source)
		}
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", a.opts.Source)
	}

	// Discover source files
	entries, err := walker.Discover(a.opts.Source, walker.Options{
		FollowSymlinks: a.opts.FollowSymlinks,
		Exclude:        a.opts.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover source files: %w", err)
	}

	var total int64
	for _, entry := range entries {
		if entry.Kind == walker.KindRegular {
			total += entry.Size
		}
	}

	a.logger.Info("starting archive",
		"source", a.opts.Source,
		"archive", a.opts.Archive,
		"entries", len(entries),
		"total_bytes", total,
		"dry_run", a.opts.DryRun)

	summary := &Summary{
		Archive:  a.opts.Archive,
		Manifest: a.opts.Manifest,
		DryRun:   a.opts.DryRun,
	}

	// check for dry-run mode
	if a.opts.DryRun {
		for _, entry := range entries {
			if entry.Kind != walker.KindRegular {
				summary.Skipped = append(summary.Skipped, SkippedFile{
					Path:   entry.ArchivePath,
					Reason: skipReason(entry.Kind),
				})
				a.logger.Warn("[dry-run] would skip", "path", entry.ArchivePath, "reason", skipReason(entry.Kind))
				continue
			}
			a.logger.Info("[dry-run] would add", "path", entry.ArchivePath, "bytes", entry.Size)
			summary.FileCount++
			summary.TotalBytes += entry.Size
		}
		a.logger.Info("dry-run complete, no files written")
		return summary, nil
	}

	// Ensure output directory exists
	if err := os.MkdirAll(filepath.Dir(a.opts.Archive), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Create temp container in the destination directory for atomic rename
	tmpFile, err := os.CreateTemp(filepath.Dir(a.opts.Archive), ".zipsum-tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	zw := zip.NewWriter(tmpFile)
	man := manifest.New()
	buf := make([]byte, a.opts.ChunkSize)
	var done int64

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			_ = zw.Close()
			_ = tmpFile.Close()
			return nil, ctx.Err()
		default:
		}

		if entry.Kind != walker.KindRegular {
			reason := skipReason(entry.Kind)
			a.logger.Warn("skipping entry", "path", entry.ArchivePath, "reason", reason)
			summary.Skipped = append(summary.Skipped, SkippedFile{Path: entry.ArchivePath, Reason: reason})
			continue
		}

		// Open before touching the container so a failure here leaves
		// no trace of the entry in the archive.
		f, err := os.Open(entry.Path)
		if err != nil {
			a.logger.Warn("skipping unreadable file", "path", entry.ArchivePath, "error", err)
			summary.Skipped = append(summary.Skipped, SkippedFile{Path: entry.ArchivePath, Reason: "unreadable"})
			total -= entry.Size
			a.progress.report(done, total)
			continue
		}

		digest, written, err := a.storeEntry(zw, entry, f, buf, &done, total)
		_ = f.Close()
		if err != nil {
			// The entry header is already in the container; the run
			// cannot continue without leaving a truncated record.
			_ = zw.Close()
			_ = tmpFile.Close()
			return nil, fmt.Errorf("failed to archive %s: %w", entry.ArchivePath, err)
		}

		man.Add(entry.ArchivePath, digest)
		summary.FileCount++
		summary.TotalBytes += written
		a.logger.Debug("file stored", "path", entry.ArchivePath, "bytes", written, "digest", digest)
	}

	if err := zw.Close(); err != nil {
		_ = tmpFile.Close()
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, a.opts.Archive); err != nil {
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	if err := man.WriteFile(a.opts.Manifest); err != nil {
		// An archive without its manifest cannot be verified; remove it
		// so outputs only ever appear as a pair.
		_ = os.Remove(a.opts.Archive)
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}

	a.logger.Info("archive complete",
		"archive", a.opts.Archive,
		"manifest", a.opts.Manifest,
		"files", summary.FileCount,
		"skipped", len(summary.Skipped),
		"bytes", summary.TotalBytes)

	return summary, nil
}

// storeEntry writes one file into the container in store mode and
// returns its hex digest and the number of bytes written. done is
// advanced chunk by chunk so progress reflects partial large files.
func (a *Archiver) storeEntry(zw *zip.Writer, entry walker.Entry, f *os.File, buf []byte, done *int64, total int64) (string, int64, error) {
	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return "", 0, err
	}
	hdr.Name = entry.ArchivePath
	hdr.Method = zip.Store

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}

	h := sha256.New()
	var written int64
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return "", written, err
			}
			_, _ = h.Write(buf[:n])
			written += int64(n)
			*done += int64(n)
			a.progress.report(*done, total)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", written, readErr
		}
	}

	return hex.EncodeToString(h.Sum(nil)), written, nil
}

// skipReason maps a non-regular entry kind to the reason recorded in
// the run summary.
func skipReason(kind walker.Kind) string {
	switch kind {
	case walker.KindSymlink:
		return "symlink"
	case walker.KindSpecial:
		return "special file"
	case walker.KindUnreadable:
		return "unreadable"
	default:
		return string(kind)
	}
}
