package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/treecrawl/internal/hierarchy"
	"golang.org/x/sync/errgroup"
)

// Factory prepares the pipeline and run for one root.
// Each root gets its own pipeline, backend and builder, so per-root
// settings from the configuration file apply in batch mode too.
type Factory func(root string) (*Pipeline, *Run, error)

// BatchProcessor crawls several roots concurrently.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on a single root
// 2. Each root already runs its own worker pool, so the batch limit is a
// second, independent knob
type BatchProcessor struct {
	// factory creates a fresh pipeline and run for each root.
	factory Factory

	// concurrency is the maximum number of roots crawled at once.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Default is 2 if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: 2,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls all roots and returns one run per root, in the
// order of roots. Runs whose root could not be prepared carry the
// factory error on their report.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, roots []string) ([]*Run, error) {
	runs := make([]*Run, len(roots))
	err := bp.ProcessBatchWithCallback(ctx, roots, func(run *Run, index int) {
		// Each index is written by exactly one goroutine.
		runs[index] = run
	})
	return runs, err
}

// ProcessBatchWithCallback crawls all roots and calls callback for each
// finished run. This is useful for streaming results.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
//
// The callback is called from the goroutine that ran the crawl, so it
// must be safe for concurrent use. A failed crawl does not stop the
// batch; only cancellation of ctx does, and roots not yet started are
// then skipped without a callback.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	roots []string,
	callback func(run *Run, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_roots", len(roots),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, root := range roots {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("crawling root",
				"root", root,
				"index", i+1,
				"total", len(roots),
			)

			p, run, err := bp.factory(root)
			if err != nil {
				bp.logger.Warn("cannot prepare crawl", "root", root, "error", err)
				run = NewRun(root, hierarchy.NewBuilder())
				run.Report.SetError(err)
				run.Report.FinishedAt = time.Now()
				callback(run, i)
				return nil
			}

			// The error is recorded on the report.
			_ = p.Execute(ctx, run) //nolint:errcheck

			if run.Report.Success {
				bp.logger.Info("crawl completed", "root", root)
			} else {
				bp.logger.Warn("crawl failed", "root", root, "error", run.Report.ErrorMessage)
			}

			callback(run, i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_roots", len(roots),
		"elapsed", time.Since(startTime),
	)

	return err
}
