package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nao1215/treecrawl/internal/backend"
	"github.com/nao1215/treecrawl/internal/crawler"
	"github.com/nao1215/treecrawl/internal/hierarchy"
	"github.com/nao1215/treecrawl/internal/model"
)

// TestDefaultPipelineLocal runs the standard pipeline against a real directory.
func TestDefaultPipelineLocal(t *testing.T) {
	t.Parallel()

	dir := writeTree(t, "a/x.txt", "a/y.txt", "b.txt", "empty/")
	b := backend.NewLocal(dir, backend.WithLogger(quietLogger()))

	p := Default(b, "/", []Option{WithLogger(quietLogger()), WithContinueOnError(true)}, WithWorkers(3))
	run := NewRun(dir, hierarchy.NewBuilder(hierarchy.WithDriver(b.Driver()), hierarchy.WithBuilderLogger(quietLogger())))

	if err := p.Execute(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"/", "/a", "/a/x.txt", "/a/y.txt", "/b.txt", "/empty"}
	if got := run.Builder.Hierarchy().Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}

	r := run.Report
	if !r.Success {
		t.Errorf("expected success, got error %q", r.ErrorMessage)
	}
	if r.FileCount != 3 || r.DirCount != 3 {
		t.Errorf("expected 3 files and 3 dirs, got %d/%d", r.FileCount, r.DirCount)
	}
	if r.Jobs != 3 {
		t.Errorf("expected 3 listed directories, got %d", r.Jobs)
	}
	if r.Driver != backend.DriverLocal || r.Workers != 3 || r.RootPath != "/" {
		t.Errorf("unexpected report header: %+v", r)
	}
	if r.Fingerprint == "" || r.Fingerprint != run.Builder.Hierarchy().Fingerprint() {
		t.Errorf("unexpected fingerprint %q", r.Fingerprint)
	}
	if !reflect.DeepEqual(r.PerformedSteps, []string{"crawl", "ancestors", "validate", "fingerprint"}) {
		t.Errorf("unexpected steps %v", r.PerformedSteps)
	}
}

// TestCrawlStep tests the crawl step against an in-memory backend.
func TestCrawlStep(t *testing.T) {
	t.Parallel()

	t.Run("sessions are opened and closed", func(t *testing.T) {
		t.Parallel()

		m := newMemBackend("pub/a.txt", "pub/b/c.txt")
		run := newTestRun("mem:///pub")
		step := NewCrawlStep(m, "/pub", WithWorkers(4), WithCrawlLogger(quietLogger()))

		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.opened.Load() != 4 || m.closed.Load() != 4 {
			t.Errorf("expected 4 sessions opened and closed, got %d/%d", m.opened.Load(), m.closed.Load())
		}
		if run.Report.RootPath != "/pub" || run.Report.Driver != "mem" {
			t.Errorf("unexpected report %+v", run.Report)
		}
		if !run.Builder.Hierarchy().Has("/pub/b/c.txt") {
			t.Error("expected nested file in hierarchy")
		}
	})

	t.Run("strict crawl reports partial failure", func(t *testing.T) {
		t.Parallel()

		m := newMemBackend("a/x.txt", "b/y.txt")
		m.broken["/b"] = true
		run := newTestRun("mem:///")
		step := NewCrawlStep(m, "/",
			WithCrawlLogger(quietLogger()),
			WithWalkerOptions(crawler.WithMaxRetries(2), crawler.WithBackoff(0)),
		)

		err := step.Do(context.Background(), run)
		if !errors.Is(err, crawler.ErrPartialFailure) {
			t.Fatalf("expected ErrPartialFailure, got %v", err)
		}
		if run.Report.Success {
			t.Error("expected unsuccessful report")
		}
		if len(run.Report.Failed) != 1 || run.Report.Failed[0].Path != "/b" {
			t.Errorf("unexpected failed list %v", run.Report.Failed)
		}
		if !run.Builder.Hierarchy().Has("/a/x.txt") {
			t.Error("expected healthy subtree to be crawled")
		}
	})

	t.Run("partial failure allowed", func(t *testing.T) {
		t.Parallel()

		m := newMemBackend("a/x.txt", "b/y.txt")
		m.broken["/b"] = true
		run := newTestRun("mem:///")
		step := NewCrawlStep(m, "/",
			WithPartialFailure(true),
			WithCrawlLogger(quietLogger()),
			WithWalkerOptions(crawler.WithMaxRetries(1)),
		)

		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !run.Report.Success || !run.Report.AllowPartialFailure {
			t.Errorf("expected successful partial crawl, got %+v", run.Report)
		}
	})

	t.Run("open failure", func(t *testing.T) {
		t.Parallel()

		m := newMemBackend("a")
		m.openErr = errors.New("530 login incorrect")
		run := newTestRun("mem:///")
		err := NewCrawlStep(m, "/", WithCrawlLogger(quietLogger())).Do(context.Background(), run)
		if !errors.Is(err, m.openErr) {
			t.Fatalf("expected open error, got %v", err)
		}
	})

	t.Run("cancelled crawl", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		m := newMemBackend("a/x.txt")
		run := newTestRun("mem:///")
		err := NewCrawlStep(m, "/", WithCrawlLogger(quietLogger())).Do(ctx, run)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if !run.Report.Cancelled || run.Report.Success {
			t.Errorf("expected cancelled report, got %+v", run.Report)
		}
		if m.closed.Load() != 1 {
			t.Error("expected sessions to be closed after cancellation")
		}
	})

	t.Run("crawl timeout", func(t *testing.T) {
		t.Parallel()

		m := newMemBackend("a/x.txt")
		m.broken["/"] = true
		run := newTestRun("mem:///")
		step := NewCrawlStep(m, "/",
			WithCrawlTimeout(20*time.Millisecond),
			WithCrawlLogger(quietLogger()),
			WithWalkerOptions(crawler.WithMaxRetries(3), crawler.WithBackoff(50*time.Millisecond)),
		)
		err := step.Do(context.Background(), run)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
		// The running job keeps its retries after the deadline.
		if got := m.brokenCalls.Load(); got != 3 {
			t.Errorf("expected 3 listing attempts, got %d", got)
		}
	})
}

// TestHierarchySteps tests the steps that run after the crawl.
func TestHierarchySteps(t *testing.T) {
	t.Parallel()

	t.Run("ancestors make a nested root valid", func(t *testing.T) {
		t.Parallel()

		run := newTestRun("/srv/data")
		run.Report.RootPath = "/srv/data"
		run.Builder.Add("/srv/data/a.txt", false)

		if err := NewValidateStep().Do(context.Background(), run); !errors.Is(err, hierarchy.ErrMissingRoot) {
			t.Fatalf("expected ErrMissingRoot before ancestors, got %v", err)
		}
		if err := NewAncestorStep(quietLogger()).Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if err := NewValidateStep().Do(context.Background(), run); err != nil {
			t.Fatalf("expected valid hierarchy, got %v", err)
		}
		for _, p := range []string{"/", "/srv", "/srv/data"} {
			e, ok := run.Builder.Hierarchy().Get(p)
			if !ok || e.Kind() != model.KindDir {
				t.Errorf("expected directory %s", p)
			}
		}
	})

	t.Run("fingerprint is recorded", func(t *testing.T) {
		t.Parallel()

		run := newTestRun("/")
		run.Builder.AddAncestorPrefixes("/")
		if err := NewFingerprintStep().Do(context.Background(), run); err != nil {
			t.Fatal(err)
		}
		if len(run.Report.Fingerprint) != 64 {
			t.Errorf("expected hex sha3-256 digest, got %q", run.Report.Fingerprint)
		}
	})
}
