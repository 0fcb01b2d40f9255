package archive

// Entry statuses reported by the verifier.
const (
	StatusMatch               = "match"
	StatusMismatch            = "mismatch"
	StatusMissingFromArchive  = "missing-from-archive"
	StatusMissingFromManifest = "missing-from-manifest"
)

// EntryResult is the verification outcome for a single archive path.
type EntryResult struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Want   string `json:"want,omitempty"`
	Got    string `json:"got,omitempty"`
}

// Report aggregates the verification outcome of an archive against its
// manifest. Entries holds one result per path, sorted by path.
type Report struct {
	Archive             string        `json:"archive"`
	Manifest            string        `json:"manifest"`
	Matches             int           `json:"matches"`
	Mismatches          int           `json:"mismatches"`
	MissingFromArchive  int           `json:"missing_from_archive"`
	MissingFromManifest int           `json:"missing_from_manifest"`
	Entries             []EntryResult `json:"entries"`
}

// Ok reports whether every manifest entry matched and no unlisted
// content was found in the archive.
func (r *Report) Ok() bool {
	return r.Mismatches == 0 && r.MissingFromArchive == 0 && r.MissingFromManifest == 0
}

func (r *Report) add(res EntryResult) {
	switch res.Status {
	case StatusMatch:
		r.Matches++
	case StatusMismatch:
		r.Mismatches++
	case StatusMissingFromArchive:
		r.MissingFromArchive++
	case StatusMissingFromManifest:
		r.MissingFromManifest++
	}
	r.Entries = append(r.Entries, res)
}

// SkippedFile records a source file that was left out of the archive
// and the reason it could not be included.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Summary describes the result of an archive run.
type Summary struct {
	Archive    string        `json:"archive"`
	Manifest   string        `json:"manifest"`
	FileCount  int           `json:"file_count"`
	TotalBytes int64         `json:"total_bytes"`
	Skipped    []SkippedFile `json:"skipped,omitempty"`
	DryRun     bool          `json:"dry_run,omitempty"`
}
