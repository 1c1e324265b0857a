package crawler

import (
	"errors"
	"fmt"
)

// Crawl errors.
// Protocol errors (ErrWorkerBusy, ErrResultNotReady) indicate a bug in the
// coordination logic, not a problem with the dataset, and are never retried.
var (
	// ErrWorkerBusy is returned when a job is assigned to a worker that is not idle.
	ErrWorkerBusy = errors.New("worker is not idle")

	// ErrResultNotReady is returned when a result is collected from a worker
	// that has not finished its job.
	ErrResultNotReady = errors.New("worker has no finished result")

	// ErrNoSessions is returned when Crawl is called without any sessions.
	// The number of sessions is the size of the worker pool.
	ErrNoSessions = errors.New("no sessions: at least one worker session is required")

	// ErrInvalidRoot is returned when the crawl root is empty.
	ErrInvalidRoot = errors.New("invalid root: path must not be empty")

	// ErrPartialFailure is returned when some directories could not be listed
	// and partial failure is not allowed.
	ErrPartialFailure = errors.New("crawl finished with directories that could not be listed")
)

// TransientError wraps the last error of an operation that was retried
// until the retry budget ran out.
type TransientError struct {
	// Op is the backend operation ("list" or "isdir").
	Op string

	// Path is the path the operation was applied to.
	Path string

	// Attempts is the number of attempts made.
	Attempts int

	// Err is the error returned by the last attempt.
	Err error
}

// Error implements error.
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s %s: giving up after %d attempt(s): %v", e.Op, e.Path, e.Attempts, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *TransientError) Unwrap() error {
	return e.Err
}
