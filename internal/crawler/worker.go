package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nao1215/treecrawl/internal/model"
)

// WorkerState is the position of a Worker in its job lifecycle.
type WorkerState int32

const (
	// StateIdle means the worker holds no job and no result.
	StateIdle WorkerState = iota

	// StateAssigned means a job was handed over but processing has not started.
	StateAssigned

	// StateRunning means the worker is talking to the backend.
	StateRunning

	// StateDone means a result is waiting to be collected.
	StateDone

	// StateTerminated means the worker goroutine has exited.
	StateTerminated
)

// String returns a human-readable representation of the state.
func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAssigned:
		return "assigned"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// completion carries a finished result from a worker to the Walker.
type completion struct {
	worker *Worker
	result model.CrawlResult
}

// Worker lists one directory at a time through its own Session.
//
// A worker holds at most one job and one result. Only the Walker moves a
// worker from Idle to Assigned (Assign) and from Done back to Idle (collect),
// so the Walker can read the state without further locking.
type Worker struct {
	// id identifies the worker in logs.
	id int

	// session is the backend state owned by this worker.
	session Session

	// lister performs the backend calls.
	lister Lister

	// retry is applied to every backend call.
	retry RetryPolicy

	// logger is used for per-job logging.
	logger *slog.Logger

	// jobs is the single-slot inbox.
	jobs chan string

	// results is shared by all workers of a Walker.
	// Its capacity equals the pool size, so a send never blocks.
	results chan<- completion

	// state holds a WorkerState.
	state atomic.Int32
}

// newWorker creates an idle worker.
func newWorker(id int, session Session, lister Lister, retry RetryPolicy, logger *slog.Logger, results chan<- completion) *Worker {
	return &Worker{
		id:      id,
		session: session,
		lister:  lister,
		retry:   retry,
		logger:  logger.With("worker", id),
		jobs:    make(chan string, 1),
		results: results,
	}
}

// ID returns the worker's index in the pool.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Assign hands dir to the worker.
// It fails with ErrWorkerBusy unless the worker is idle; assigning a second
// job is a coordination bug, not a recoverable condition.
func (w *Worker) Assign(dir string) error {
	if !w.state.CompareAndSwap(int32(StateIdle), int32(StateAssigned)) {
		return fmt.Errorf("%w: worker %d is %s", ErrWorkerBusy, w.id, w.State())
	}
	w.jobs <- dir
	return nil
}

// collect marks the worker's result as consumed and returns it to Idle.
func (w *Worker) collect() error {
	if !w.state.CompareAndSwap(int32(StateDone), int32(StateIdle)) {
		return fmt.Errorf("%w: worker %d is %s", ErrResultNotReady, w.id, w.State())
	}
	return nil
}

// run processes jobs until stop is closed.
// The stop signal is only observed between jobs: a job that has started
// always runs to completion, including its retries.
func (w *Worker) run(ctx context.Context, stop <-chan struct{}) {
	defer w.state.Store(int32(StateTerminated))

	for {
		select {
		case <-stop:
			return
		case dir := <-w.jobs:
			w.state.Store(int32(StateRunning))
			result := w.process(ctx, dir)
			w.state.Store(int32(StateDone))
			w.results <- completion{worker: w, result: result}
		}
	}
}

// process lists dir and classifies its children.
func (w *Worker) process(ctx context.Context, dir string) model.CrawlResult {
	var names []string
	attempts, err := w.retry.do(ctx, "list", dir, func() error {
		var listErr error
		names, listErr = w.lister.ListChildren(ctx, w.session, dir)
		if listErr != nil {
			w.logger.Debug("listing attempt failed", "path", dir, "error", listErr)
		}
		return listErr
	})
	if err != nil {
		w.logger.Warn("directory listing failed", "path", dir, "attempts", attempts, "error", err)
		return model.CrawlResult{Path: dir, OK: false, Err: err, Attempts: attempts}
	}

	result := model.CrawlResult{
		Path:     dir,
		Files:    make([]string, 0, len(names)),
		Dirs:     make([]string, 0),
		OK:       true,
		Attempts: attempts,
	}

	for _, raw := range names {
		name := childName(raw)
		if name == "" {
			continue
		}
		child := JoinPath(dir, name)

		var isDir bool
		_, err := w.retry.do(ctx, "isdir", child, func() error {
			var statErr error
			isDir, statErr = w.lister.IsDir(ctx, w.session, child)
			return statErr
		})
		if err != nil {
			w.logger.Warn("could not classify child", "path", child, "error", err)
			result.Unclassified = append(result.Unclassified, name)
			continue
		}

		if isDir {
			result.Dirs = append(result.Dirs, name)
		} else {
			result.Files = append(result.Files, name)
		}
	}

	w.logger.Debug("directory listed",
		"path", dir,
		"files", len(result.Files),
		"dirs", len(result.Dirs),
		"unclassified", len(result.Unclassified),
	)

	return result
}
