package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nao1215/treecrawl/internal/model"
	"golang.org/x/sync/errgroup"
)

// UnclassifiedPolicy decides what happens to a child whose directory check
// failed permanently.
type UnclassifiedPolicy int

const (
	// ClassifyAsFile offers the child to the inclusion callback as a file so
	// the crawl makes progress. The child is still reported as unclassified.
	ClassifyAsFile UnclassifiedPolicy = iota

	// SkipUnclassified leaves the child out of the result entirely.
	// It is only reported as unclassified.
	SkipUnclassified
)

// String returns the name used in configuration files.
func (p UnclassifiedPolicy) String() string {
	switch p {
	case ClassifyAsFile:
		return "file"
	case SkipUnclassified:
		return "skip"
	default:
		return "unknown"
	}
}

// Walker coordinates a crawl over a pool of workers.
//
// The Walker goroutine is the only owner of the frontier queue and the only
// caller of the inclusion callback, so neither needs to be safe for
// concurrent use.
type Walker struct {
	// lister performs backend calls on behalf of every worker.
	lister Lister

	// include is called once per discovered child.
	include IncludeFunc

	// retry is applied to every backend call.
	retry RetryPolicy

	// allowPartialFailure makes a crawl with failed directories succeed.
	allowPartialFailure bool

	// unclassified selects the handling of children that could not be classified.
	unclassified UnclassifiedPolicy

	// progressInterval controls periodic progress logging. Zero disables it.
	progressInterval time.Duration

	// logger is used for crawl-level logging.
	logger *slog.Logger
}

// WalkerOption configures a Walker.
type WalkerOption func(*Walker)

// WithRetryPolicy sets the retry policy for backend calls.
func WithRetryPolicy(p RetryPolicy) WalkerOption {
	return func(w *Walker) {
		w.retry = p
	}
}

// WithMaxRetries sets the number of attempts for each backend call.
func WithMaxRetries(n int) WalkerOption {
	return func(w *Walker) {
		if n > 0 {
			w.retry.MaxRetries = n
		}
	}
}

// WithBackoff sets the pause between two attempts.
func WithBackoff(d time.Duration) WalkerOption {
	return func(w *Walker) {
		if d >= 0 {
			w.retry.Backoff = d
		}
	}
}

// WithAllowPartialFailure makes the crawl succeed even if some directories
// could not be listed. The failed paths are still reported.
func WithAllowPartialFailure(allow bool) WalkerOption {
	return func(w *Walker) {
		w.allowPartialFailure = allow
	}
}

// WithUnclassifiedPolicy sets how unclassifiable children are handled.
func WithUnclassifiedPolicy(p UnclassifiedPolicy) WalkerOption {
	return func(w *Walker) {
		w.unclassified = p
	}
}

// WithProgressInterval enables an Info log line every d while crawling.
func WithProgressInterval(d time.Duration) WalkerOption {
	return func(w *Walker) {
		w.progressInterval = d
	}
}

// WithWalkerLogger sets a custom logger.
func WithWalkerLogger(logger *slog.Logger) WalkerOption {
	return func(w *Walker) {
		w.logger = logger
	}
}

// NewWalker creates a Walker that lists directories through lister and
// offers every discovered child to include.
//
// Design decision: The inclusion callback is where the caller builds its
// result (in practice hierarchy.Builder.Include). The Walker only keeps the
// frontier, so it never holds a second copy of the tree.
func NewWalker(lister Lister, include IncludeFunc, opts ...WalkerOption) *Walker {
	w := &Walker{
		lister:       lister,
		include:      include,
		retry:        DefaultRetryPolicy(),
		unclassified: ClassifyAsFile,
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.include == nil {
		w.include = func(string, bool) bool { return true }
	}

	return w
}

// Outcome summarizes a finished crawl.
type Outcome struct {
	// Root is the normalized crawl root.
	Root string

	// Jobs is the number of directories whose listing was collected.
	Jobs int

	// Failed lists directories whose listing failed permanently.
	Failed []model.FailedPath

	// Unclassified lists children whose directory check failed permanently.
	Unclassified []string

	// Abandoned lists queued directories that were never assigned because
	// the crawl was stopped early.
	Abandoned []string

	// Cancelled is true if the context was cancelled during the crawl.
	Cancelled bool

	// Success is true if no directory failed, or if partial failure is allowed.
	// It is always false for a cancelled crawl.
	Success bool
}

// Crawl explores the tree below root using one worker per session.
//
// root itself is listed but not offered to the inclusion callback; callers
// that need an entry for it add it themselves (see
// hierarchy.Builder.AddAncestorPrefixes).
//
// The returned Outcome is never nil once the workers have started, even when
// an error is returned:
//   - ctx.Err() if the context was cancelled; in-flight jobs are drained
//     and the unassigned frontier is reported as Abandoned
//   - ErrPartialFailure if directories failed and partial failure is not allowed
//   - ErrWorkerBusy or ErrResultNotReady on a coordination bug
func (w *Walker) Crawl(ctx context.Context, root string, sessions []Session) (*Outcome, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrInvalidRoot
	}
	if len(sessions) == 0 {
		return nil, ErrNoSessions
	}

	root = NormalizePath(root)
	out := &Outcome{Root: root}

	results := make(chan completion, len(sessions))
	stop := make(chan struct{})
	workers := make([]*Worker, len(sessions))

	// Jobs run on a context the caller cannot cancel. Cancellation stops
	// new assignments only; a running job finishes its retries so its
	// children are never classified from a cancelled call.
	jobCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, sess := range sessions {
		wk := newWorker(i, sess, w.lister, w.retry, w.logger, results)
		workers[i] = wk
		g.Go(func() error {
			wk.run(jobCtx, stop)
			return nil
		})
	}

	w.logger.Info("crawl started",
		"root", root,
		"workers", len(workers),
		"max_retries", w.retry.attempts(),
	)
	startTime := time.Now()

	var ticker <-chan time.Time
	if w.progressInterval > 0 {
		t := time.NewTicker(w.progressInterval)
		defer t.Stop()
		ticker = t.C
	}

	queue := []string{root}
	busy := 0
	done := ctx.Done()
	var fatal error

	markCancelled := func() {
		out.Cancelled = true
		done = nil
		w.logger.Warn("crawl cancelled, waiting for running jobs",
			"busy", busy,
			"queued", len(queue),
		)
	}

	for {
		if !out.Cancelled && ctx.Err() != nil {
			markCancelled()
		}
		draining := out.Cancelled || fatal != nil

		if !draining {
			for _, wk := range workers {
				if len(queue) == 0 {
					break
				}
				if wk.State() != StateIdle {
					continue
				}
				if err := wk.Assign(queue[0]); err != nil {
					fatal = err
					break
				}
				queue = queue[1:]
				busy++
			}
		}

		if busy == 0 && (len(queue) == 0 || draining || fatal != nil) {
			break
		}

		select {
		case c := <-results:
			busy--
			if err := c.worker.collect(); err != nil && fatal == nil {
				fatal = err
			}
			out.Jobs++
			queue = append(queue, w.handle(c.result, out)...)

		case <-done:
			markCancelled()

		case <-ticker:
			w.logger.Info("crawl progress",
				"root", root,
				"jobs", out.Jobs,
				"busy", busy,
				"queued", len(queue),
				"failed", len(out.Failed),
			)
		}
	}

	close(stop)
	_ = g.Wait() //nolint:errcheck // workers never return an error

	if out.Cancelled || fatal != nil {
		out.Abandoned = queue
	}

	w.logger.Info("crawl finished",
		"root", root,
		"jobs", out.Jobs,
		"failed", len(out.Failed),
		"unclassified", len(out.Unclassified),
		"elapsed", time.Since(startTime),
	)

	switch {
	case fatal != nil:
		return out, fatal
	case out.Cancelled:
		return out, ctx.Err()
	case len(out.Failed) > 0 && !w.allowPartialFailure:
		return out, fmt.Errorf("%w: %d failed", ErrPartialFailure, len(out.Failed))
	}

	out.Success = true
	return out, nil
}

// handle processes one collected result and returns the directories to queue.
func (w *Walker) handle(res model.CrawlResult, out *Outcome) []string {
	if !res.OK {
		reason := "unknown error"
		if res.Err != nil {
			reason = res.Err.Error()
		}
		out.Failed = append(out.Failed, model.FailedPath{Path: res.Path, Reason: reason})
		return nil
	}

	for _, name := range res.Files {
		w.include(JoinPath(res.Path, name), false)
	}

	for _, name := range res.Unclassified {
		p := JoinPath(res.Path, name)
		out.Unclassified = append(out.Unclassified, p)
		if w.unclassified == ClassifyAsFile {
			w.logger.Warn("treating unclassified child as a file", "path", p)
			w.include(p, false)
		}
	}

	var discovered []string
	for _, name := range res.Dirs {
		p := JoinPath(res.Path, name)
		if w.include(p, true) {
			discovered = append(discovered, p)
		}
	}

	return discovered
}
