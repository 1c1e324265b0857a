package model

import (
	"sort"
	"time"
)

// CrawlReport is the main result structure for one crawled root.
// It contains everything the report writers and the database need, except the
// hierarchy itself, which is held by the caller.
//
// Design decision: We use a single flat struct rather than many small ones
// to simplify serialization and database storage.
type CrawlReport struct {
	// === Basic Information ===

	// Root is the crawl root as given by the user (a path or URL).
	Root string `json:"root"`

	// RootPath is the absolute path inside the backend where crawling started.
	RootPath string `json:"root_path"`

	// Driver names the backend used for the crawl.
	Driver string `json:"driver"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl ended.
	FinishedAt time.Time `json:"finished_at"`

	// Workers is the number of concurrent workers used.
	Workers int `json:"workers"`

	// AllowPartialFailure records whether failed directories were tolerated.
	AllowPartialFailure bool `json:"allow_partial_failure"`

	// === Crawl Statistics ===

	// Jobs is the number of directories listed (successfully or not).
	Jobs int `json:"jobs"`

	// FileCount is the number of file entries in the hierarchy.
	FileCount int `json:"file_count"`

	// DirCount is the number of directory entries in the hierarchy.
	DirCount int `json:"dir_count"`

	// Rejected is the number of paths refused by the inclusion policy.
	Rejected int `json:"rejected"`

	// Duplicates is the number of paths that were offered twice.
	Duplicates int `json:"duplicates"`

	// === Failure Report ===

	// Failed lists the directories whose listing failed permanently.
	Failed []FailedPath `json:"failed,omitempty"`

	// Unclassified lists children whose directory check failed permanently.
	Unclassified []string `json:"unclassified,omitempty"`

	// Abandoned lists queued directories that were never listed because
	// the crawl was cancelled.
	Abandoned []string `json:"abandoned,omitempty"`

	// === Result ===

	// Fingerprint is a digest of the finished hierarchy.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Success is the overall outcome, honouring AllowPartialFailure.
	Success bool `json:"success"`

	// Cancelled is true if the crawl was stopped by context cancellation.
	Cancelled bool `json:"cancelled"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error contains any error that stopped the crawl.
	Error error `json:"-"`

	// ErrorMessage is the string representation of Error for serialization.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// NewCrawlReport creates a new report for the given root.
func NewCrawlReport(root string) *CrawlReport {
	return &CrawlReport{
		Root:      root,
		RootPath:  "/",
		StartedAt: time.Now(),
	}
}

// Duration returns how long the crawl took.
// Returns zero if the crawl has not finished.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// EntryCount returns the total number of entries in the hierarchy.
func (r *CrawlReport) EntryCount() int {
	return r.FileCount + r.DirCount
}

// HasProblems reports whether anything went wrong that a reader should see.
func (r *CrawlReport) HasProblems() bool {
	return len(r.Failed) > 0 || len(r.Unclassified) > 0 || len(r.Abandoned) > 0 || r.ErrorMessage != ""
}

// SetError records err on the report.
func (r *CrawlReport) SetError(err error) {
	r.Error = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// FailedPaths returns the failed directory paths in sorted order.
func (r *CrawlReport) FailedPaths() []string {
	paths := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	return paths
}
