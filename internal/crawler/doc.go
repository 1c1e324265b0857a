// Package crawler provides the parallel directory crawler that builds the
// input for a dataset manifest.
//
// # Architecture
//
// The package is designed around the Walker type, which coordinates a fixed
// pool of Workers. Each Worker is bound to one backend Session (an FTP control
// connection, an HTTP client, or nothing at all for the local filesystem) and
// lists one directory at a time through the caller-supplied Lister.
//
// The Walker owns the frontier queue. It hands queued directories to idle
// workers, receives finished listings over a channel, passes every child to
// the caller's inclusion callback and queues accepted directories. The crawl
// ends when the queue is empty and no worker holds a job or an uncollected
// result.
//
// Design decision: Workers push results to the Walker over a channel instead
// of the Walker polling them on a timer because:
//  1. Completion is noticed immediately rather than after a sleep
//  2. The single-slot mailbox invariant still holds: a worker owns one job
//     and one result at most, and only the Walker collects results
//  3. The frontier and the hierarchy stay owned by the Walker goroutine, so
//     neither needs a lock
//
// # Components
//
//   - Lister: Backend capability that lists children and classifies paths
//   - Worker: One unit of concurrency bound to one Session
//   - Walker: The coordinator that owns the queue and the worker pool
//   - RetryPolicy: Bounded retry with a fixed backoff for transient errors
//   - PatternFilter: Glob-based inclusion policy
//
// # Failure Semantics
//
// A directory whose listing keeps failing is reported in Outcome.Failed and
// never aborts the crawl. Whether the crawl as a whole succeeds is decided
// at the end by the AllowPartialFailure option.
//
// # Usage
//
//	walker := crawler.NewWalker(lister, builder.Include,
//	    crawler.WithMaxRetries(3),
//	    crawler.WithAllowPartialFailure(true),
//	)
//	outcome, err := walker.Crawl(ctx, "/data", sessions)
package crawler
