package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/treecrawl/internal/hierarchy"
)

// memFactory returns a factory that crawls a fresh in-memory tree per root.
func memFactory(paths ...string) Factory {
	return func(root string) (*Pipeline, *Run, error) {
		m := newMemBackend(paths...)
		p := Default(m, "/", []Option{WithLogger(quietLogger())}, WithWorkers(2))
		return p, NewRun(root, hierarchy.NewBuilder(hierarchy.WithDriver(m.Driver()), hierarchy.WithBuilderLogger(quietLogger()))), nil
	}
}

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(memFactory())
		if bp.concurrency != 2 {
			t.Errorf("expected default concurrency 2, got %d", bp.concurrency)
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		if bp := NewBatchProcessor(memFactory(), WithConcurrency(5)); bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		if bp := NewBatchProcessor(memFactory(), WithConcurrency(0)); bp.concurrency != 2 {
			t.Errorf("expected concurrency 2, got %d", bp.concurrency)
		}
	})
}

// TestBatchProcessorProcessBatch tests batch processing.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("processes all roots in order", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(memFactory("a/x.txt", "b.txt"), WithConcurrency(3), WithBatchLogger(quietLogger()))
		roots := []string{"mem://one", "mem://two", "mem://three", "mem://four"}

		runs, err := bp.ProcessBatch(context.Background(), roots)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(runs) != len(roots) {
			t.Fatalf("expected %d runs, got %d", len(roots), len(runs))
		}
		for i, run := range runs {
			if run.Report.Root != roots[i] {
				t.Errorf("run %d: expected root %s, got %s", i, roots[i], run.Report.Root)
			}
			if !run.Report.Success || run.Report.FileCount != 2 || run.Report.DirCount != 2 {
				t.Errorf("run %d: unexpected report %+v", i, run.Report)
			}
		}
	})

	t.Run("factory error is recorded and does not stop the batch", func(t *testing.T) {
		t.Parallel()

		good := memFactory("a.txt")
		factory := func(root string) (*Pipeline, *Run, error) {
			if root == "bad" {
				return nil, nil, errors.New("unsupported scheme")
			}
			return good(root)
		}

		runs, err := NewBatchProcessor(factory, WithBatchLogger(quietLogger())).
			ProcessBatch(context.Background(), []string{"ok1", "bad", "ok2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if runs[1].Report.Success || runs[1].Report.ErrorMessage != "unsupported scheme" {
			t.Errorf("expected recorded factory error, got %+v", runs[1].Report)
		}
		if !runs[0].Report.Success || !runs[2].Report.Success {
			t.Error("expected other roots to succeed")
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var active, peak atomic.Int32
		factory := func(root string) (*Pipeline, *Run, error) {
			p := New(WithLogger(quietLogger()))
			p.AddStep(&mockStep{name: "slow", doFunc: func(context.Context, *Run) error {
				n := active.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				active.Add(-1)
				return nil
			}})
			return p, newTestRun(root), nil
		}

		roots := []string{"1", "2", "3", "4", "5", "6"}
		if _, err := NewBatchProcessor(factory, WithConcurrency(2), WithBatchLogger(quietLogger())).
			ProcessBatch(context.Background(), roots); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent crawls, got %d", peak.Load())
		}
	})

	t.Run("cancelled batch", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var mu sync.Mutex
		called := 0
		err := NewBatchProcessor(memFactory("a"), WithBatchLogger(quietLogger())).
			ProcessBatchWithCallback(ctx, []string{"x", "y"}, func(*Run, int) {
				mu.Lock()
				called++
				mu.Unlock()
			})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if called != 0 {
			t.Errorf("expected no callbacks, got %d", called)
		}
	})
}
