package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and File.Validate() and
// describe what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoRoot is returned when no crawl root is given.
	ErrNoRoot = errors.New("no root specified: provide at least one path or URL to crawl")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrInvalidMaxRetries is returned when the retry count is not positive.
	// The count includes the first attempt, so zero would never call the backend.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be positive")

	// ErrInvalidBackoff is returned when the backoff is negative.
	ErrInvalidBackoff = errors.New("invalid backoff: must be non-negative")

	// ErrInvalidTimeout is returned when the per-call timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidCrawlTimeout is returned when the crawl timeout is negative.
	// Use 0 for no limit.
	ErrInvalidCrawlTimeout = errors.New("invalid crawl timeout: must be non-negative")

	// ErrInvalidProgressInterval is returned when the progress interval is negative.
	// Use 0 to disable progress logging.
	ErrInvalidProgressInterval = errors.New("invalid progress interval: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidPermission is returned for a permission that is not an octal
	// number between 0 and 0777.
	ErrInvalidPermission = errors.New("invalid permission: expected octal like 0755")

	// ErrInvalidRevalidation is returned for a revalidation interval that is
	// not a non-negative duration.
	ErrInvalidRevalidation = errors.New("invalid revalidation: expected a duration like 24h")

	// ErrInvalidUnclassified is returned for an unknown unclassified policy.
	ErrInvalidUnclassified = errors.New(`invalid unclassified policy: expected "file" or "skip"`)
)
