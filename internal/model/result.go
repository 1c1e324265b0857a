package model

// CrawlResult is produced once per listed directory.
//
// When OK is false the three name slices are nil and must be treated as
// absent: the directory could not be listed, which is different from a
// directory that was listed and turned out to be empty.
type CrawlResult struct {
	// Path is the directory that was listed.
	Path string

	// Files holds the names of children classified as files.
	Files []string

	// Dirs holds the names of children classified as directories.
	Dirs []string

	// Unclassified holds the names of children whose directory check
	// failed permanently.
	Unclassified []string

	// OK reports whether the listing itself succeeded.
	OK bool

	// Err is the last listing error when OK is false.
	Err error

	// Attempts is the number of listing attempts made.
	Attempts int
}

// ChildCount returns the number of children found, or -1 when the listing failed.
func (r *CrawlResult) ChildCount() int {
	if !r.OK {
		return -1
	}
	return len(r.Files) + len(r.Dirs) + len(r.Unclassified)
}

// FailedPath records a directory whose listing exhausted its retries.
type FailedPath struct {
	// Path is the directory that could not be listed.
	Path string `json:"path"`

	// Reason is the last error message returned by the backend.
	Reason string `json:"reason"`
}
