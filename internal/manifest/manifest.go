package manifest

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Suffix is the file extension of a digest manifest sidecar.
const Suffix = ".hash"

// digestHexLen is the length of a hex-encoded SHA-256 digest.
const digestHexLen = 64

// Manifest maps archive-relative paths to hex-encoded SHA-256 digests.
// Insertion order is preserved so the serialized form mirrors the
// order entries were written into the archive.
type Manifest struct {
	paths   []string
	digests map[string]string
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{
		digests: make(map[string]string),
	}
}

// Add records the digest for an archive-relative path. Re-adding a
// path replaces its digest without duplicating it in the order.
func (m *Manifest) Add(path, digest string) {
	if _, exists := m.digests[path]; !exists {
		m.paths = append(m.paths, path)
	}
	m.digests[path] = digest
}

// Digest returns the recorded digest for path.
func (m *Manifest) Digest(path string) (string, bool) {
	d, ok := m.digests[path]
	return d, ok
}

// Len returns the number of recorded entries.
func (m *Manifest) Len() int {
	return len(m.paths)
}

// Paths returns the recorded paths in insertion order.
func (m *Manifest) Paths() []string {
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out
}

// WriteFile serializes the manifest as one "path:digest" line per
// entry. The file is written to a temporary name in the destination
// directory and renamed into place so readers never observe a
// partially written manifest.
func (m *Manifest) WriteFile(path string) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".zipsum-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	w := bufio.NewWriter(tmpFile)
	for _, p := range m.paths {
		if _, err := fmt.Fprintf(w, "%s:%s\n", p, m.digests[p]); err != nil {
			_ = tmpFile.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// Load reads a manifest file. Empty lines are ignored; any malformed
// line makes the whole manifest unreadable.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	m := New()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}

		p, digest, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		m.Add(p, digest)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

// ParseLine splits a manifest record into path and digest. The split
// happens at the LAST colon: paths may contain colons, a hex digest
// never does. Digests are validated and normalized to lowercase.
func ParseLine(line string) (string, string, error) {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed manifest line %q: no separator", line)
	}

	p := line[:idx]
	digest := strings.ToLower(line[idx+1:])

	if p == "" {
		return "", "", fmt.Errorf("malformed manifest line %q: empty path", line)
	}
	if len(digest) != digestHexLen {
		return "", "", fmt.Errorf("malformed manifest line %q: digest length %d, want %d", line, len(digest), digestHexLen)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", "", fmt.Errorf("malformed manifest line %q: digest is not hex: %w", line, err)
	}

	return p, digest, nil
}

// DefaultPath derives the sidecar manifest path from an archive path
// by replacing the final extension: out.zip becomes out.hash, an
// extensionless name gains the suffix.
func DefaultPath(archivePath string) string {
	return strings.TrimSuffix(archivePath, filepath.Ext(archivePath)) + Suffix
}
