package crawler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"
)

// TestWalkerCrawl tests the end-to-end crawl behavior.
func TestWalkerCrawl(t *testing.T) {
	t.Parallel()

	t.Run("discovers the whole tree", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/data/a.txt", "/data/b.txt", "/data/sub/c.txt")
		rec := newRecorder()

		out, err := testWalker(tree, rec.include).Crawl(context.Background(), "/data", newSessions(2))
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}

		want := map[string]bool{
			"/data/a.txt":     false,
			"/data/b.txt":     false,
			"/data/sub":       true,
			"/data/sub/c.txt": false,
		}
		if !reflect.DeepEqual(rec.seen, want) {
			t.Errorf("expected %v, got %v", want, rec.seen)
		}
		if !out.Success {
			t.Error("expected success")
		}
		if len(out.Failed) != 0 {
			t.Errorf("expected no failures, got %v", out.Failed)
		}
		if out.Jobs != 2 {
			t.Errorf("expected 2 jobs, got %d", out.Jobs)
		}
		if out.Root != "/data" {
			t.Errorf("expected root /data, got %q", out.Root)
		}
	})

	t.Run("root is not offered to include", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/data/a.txt")
		rec := newRecorder()

		if _, err := testWalker(tree, rec.include).Crawl(context.Background(), "/data", newSessions(1)); err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if _, ok := rec.seen["/data"]; ok {
			t.Error("expected root not to be offered to include")
		}
	})

	t.Run("normalizes the root", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/data/a.txt")
		rec := newRecorder()

		out, err := testWalker(tree, rec.include).Crawl(context.Background(), "data//", newSessions(1))
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if out.Root != "/data" {
			t.Errorf("expected root /data, got %q", out.Root)
		}
		if _, ok := rec.seen["/data/a.txt"]; !ok {
			t.Errorf("expected /data/a.txt, got %v", rec.seen)
		}
	})

	t.Run("empty directory is a successful listing", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/data/empty/")
		rec := newRecorder()

		out, err := testWalker(tree, rec.include).Crawl(context.Background(), "/data", newSessions(2))
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if out.Jobs != 2 {
			t.Errorf("expected 2 jobs, got %d", out.Jobs)
		}
		if len(out.Failed) != 0 {
			t.Errorf("expected no failures, got %v", out.Failed)
		}
	})

	t.Run("rejected directories are not explored", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/data/a.txt", "/data/skip/deep/x.txt")
		rec := newRecorder("/data/skip")

		out, err := testWalker(tree, rec.include).Crawl(context.Background(), "/data", newSessions(2))
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if tree.calls("/data/skip") != 0 {
			t.Errorf("expected rejected directory not to be listed, got %d calls", tree.calls("/data/skip"))
		}
		if got := rec.paths(); !reflect.DeepEqual(got, []string{"/data/a.txt"}) {
			t.Errorf("expected only /data/a.txt, got %v", got)
		}
		if out.Jobs != 1 {
			t.Errorf("expected 1 job, got %d", out.Jobs)
		}
	})

	t.Run("nil include accepts everything", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/a/b/c/d.txt")

		out, err := testWalker(tree, nil).Crawl(context.Background(), "/", newSessions(3))
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if out.Jobs != 4 {
			t.Errorf("expected 4 jobs, got %d", out.Jobs)
		}
	})
}

// TestWalkerPartialFailure tests failure containment and reporting.
func TestWalkerPartialFailure(t *testing.T) {
	t.Parallel()

	newTree := func() *fakeTree {
		tree := newFakeTree("/data/a.txt", "/data/b.txt", "/data/sub/c.txt", "/data/other/d.txt")
		tree.listFailures["/data/sub"] = -1
		return tree
	}

	t.Run("allowed partial failure succeeds and reports", func(t *testing.T) {
		t.Parallel()

		tree := newTree()
		rec := newRecorder()

		out, err := testWalker(tree, rec.include,
			WithMaxRetries(2),
			WithAllowPartialFailure(true),
		).Crawl(context.Background(), "/data", newSessions(2))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !out.Success {
			t.Error("expected success with partial failure allowed")
		}
		if len(out.Failed) != 1 || out.Failed[0].Path != "/data/sub" {
			t.Fatalf("expected failed [/data/sub], got %v", out.Failed)
		}
		if out.Failed[0].Reason == "" {
			t.Error("expected a failure reason")
		}
		if tree.calls("/data/sub") != 2 {
			t.Errorf("expected 2 listing attempts, got %d", tree.calls("/data/sub"))
		}

		// The failed directory itself was discovered by its parent.
		if isDir, ok := rec.seen["/data/sub"]; !ok || !isDir {
			t.Error("expected /data/sub to be included as a directory")
		}
		if _, ok := rec.seen["/data/sub/c.txt"]; ok {
			t.Error("expected no descendants of the failed directory")
		}
		if _, ok := rec.seen["/data/other/d.txt"]; !ok {
			t.Error("expected sibling subtree to be complete")
		}
	})

	t.Run("strict mode returns ErrPartialFailure with the outcome", func(t *testing.T) {
		t.Parallel()

		tree := newTree()
		rec := newRecorder()

		out, err := testWalker(tree, rec.include, WithMaxRetries(2)).
			Crawl(context.Background(), "/data", newSessions(2))
		if !errors.Is(err, ErrPartialFailure) {
			t.Fatalf("expected ErrPartialFailure, got %v", err)
		}
		if out == nil {
			t.Fatal("expected outcome alongside the error")
		}
		if out.Success {
			t.Error("expected failure in strict mode")
		}
		if len(out.Failed) != 1 {
			t.Errorf("expected 1 failed path, got %d", len(out.Failed))
		}
		if _, ok := rec.seen["/data/other/d.txt"]; !ok {
			t.Error("expected the crawl to continue after the failure")
		}
	})

	t.Run("transient failures are retried away", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/data/sub/c.txt")
		tree.listFailures["/data/sub"] = 2
		rec := newRecorder()

		out, err := testWalker(tree, rec.include, WithMaxRetries(3)).
			Crawl(context.Background(), "/data", newSessions(1))
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if len(out.Failed) != 0 {
			t.Errorf("expected no failures, got %v", out.Failed)
		}
		if tree.calls("/data/sub") != 3 {
			t.Errorf("expected 3 attempts, got %d", tree.calls("/data/sub"))
		}
		if _, ok := rec.seen["/data/sub/c.txt"]; !ok {
			t.Error("expected c.txt after recovery")
		}
	})

	t.Run("failing root", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/data/a.txt")
		tree.listFailures["/data"] = -1

		out, err := testWalker(tree, nil, WithMaxRetries(1), WithAllowPartialFailure(true)).
			Crawl(context.Background(), "/data", newSessions(4))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(out.Failed) != 1 || out.Failed[0].Path != "/data" {
			t.Errorf("expected root failure, got %v", out.Failed)
		}
	})
}

// TestWalkerUnclassified tests the handling of children whose type is unknown.
func TestWalkerUnclassified(t *testing.T) {
	t.Parallel()

	newTree := func() *fakeTree {
		tree := newFakeTree("/data/a.txt", "/data/odd/x.txt")
		tree.isDirFailures["/data/odd"] = -1
		return tree
	}

	t.Run("classified as file by default", func(t *testing.T) {
		t.Parallel()

		tree := newTree()
		rec := newRecorder()

		out, err := testWalker(tree, rec.include, WithMaxRetries(2)).
			Crawl(context.Background(), "/data", newSessions(2))
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if !reflect.DeepEqual(out.Unclassified, []string{"/data/odd"}) {
			t.Errorf("expected unclassified [/data/odd], got %v", out.Unclassified)
		}
		if isDir, ok := rec.seen["/data/odd"]; !ok || isDir {
			t.Error("expected /data/odd to be included as a file")
		}
		if tree.calls("/data/odd") != 0 {
			t.Error("expected unclassified child not to be explored")
		}
	})

	t.Run("skipped when configured", func(t *testing.T) {
		t.Parallel()

		tree := newTree()
		rec := newRecorder()

		out, err := testWalker(tree, rec.include, WithUnclassifiedPolicy(SkipUnclassified)).
			Crawl(context.Background(), "/data", newSessions(2))
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if len(out.Unclassified) != 1 {
			t.Errorf("expected 1 unclassified path, got %v", out.Unclassified)
		}
		if _, ok := rec.seen["/data/odd"]; ok {
			t.Error("expected /data/odd to be skipped")
		}
		if _, ok := rec.seen["/data/a.txt"]; !ok {
			t.Error("expected siblings to be unaffected")
		}
	})
}

// TestWalkerTermination tests that every pool size drains a larger tree.
func TestWalkerTermination(t *testing.T) {
	t.Parallel()

	var paths []string
	for i := 0; i < 6; i++ {
		for j := 0; j < 4; j++ {
			paths = append(paths, fmt.Sprintf("/root/d%d/e%d/f.txt", i, j))
		}
		paths = append(paths, fmt.Sprintf("/root/d%d/g.txt", i))
	}
	// 1 root + 6 d + 24 e
	const wantJobs = 31

	for _, poolSize := range []int{1, 2, 3, 8, 40} {
		t.Run(fmt.Sprintf("pool of %d", poolSize), func(t *testing.T) {
			t.Parallel()

			tree := newFakeTree(paths...)
			rec := newRecorder()

			out, err := testWalker(tree, rec.include).Crawl(context.Background(), "/root", newSessions(poolSize))
			if err != nil {
				t.Fatalf("crawl failed: %v", err)
			}
			if out.Jobs != wantJobs {
				t.Errorf("expected %d jobs, got %d", wantJobs, out.Jobs)
			}
			if len(rec.seen) != len(paths)+30 {
				t.Errorf("expected %d included paths, got %d", len(paths)+30, len(rec.seen))
			}
			if len(rec.order) != len(rec.seen) {
				t.Errorf("expected every path to be offered once, got %d offers for %d paths", len(rec.order), len(rec.seen))
			}
			for dir := range tree.dirs {
				if dir == "/" {
					continue
				}
				if n := tree.calls(dir); n != 1 {
					t.Errorf("expected %s to be listed once, got %d", dir, n)
				}
			}
		})
	}
}

// TestWalkerSessionExclusivity checks that no session is used by two jobs at once.
func TestWalkerSessionExclusivity(t *testing.T) {
	t.Parallel()

	var paths []string
	for i := 0; i < 12; i++ {
		paths = append(paths, fmt.Sprintf("/d%d/x/y.txt", i))
	}
	tree := newFakeTree(paths...)
	tree.delay = 2 * time.Millisecond

	if _, err := testWalker(tree, nil).Crawl(context.Background(), "/", newSessions(4)); err != nil {
		t.Fatalf("crawl failed: %v", err)
	}
	if tree.violations != 0 {
		t.Errorf("expected no overlapping calls on one session, got %d", tree.violations)
	}
}

// TestWalkerCancellation tests that cancellation drains running jobs and
// reports the unassigned frontier.
func TestWalkerCancellation(t *testing.T) {
	t.Parallel()

	tree := newFakeTree("/data/d1/", "/data/d2/", "/data/d3/", "/data/d4/")
	started := make(chan struct{})
	release := make(chan struct{})
	var once bool
	tree.block = func(dir string) <-chan struct{} {
		if dir == "/data" {
			return nil
		}
		if !once {
			once = true
			close(started)
		}
		return release
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		out *Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := testWalker(tree, nil).Crawl(ctx, "/data", newSessions(1))
		done <- result{out, err}
	}()

	<-started
	cancel()
	close(release)

	res := <-done
	if !errors.Is(res.err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.err)
	}
	if !res.out.Cancelled {
		t.Error("expected cancelled outcome")
	}
	if res.out.Success {
		t.Error("expected cancelled crawl not to succeed")
	}
	if len(res.out.Abandoned) != 3 {
		t.Errorf("expected 3 abandoned directories, got %v", res.out.Abandoned)
	}
	if res.out.Jobs != 2 {
		t.Errorf("expected 2 collected jobs, got %d", res.out.Jobs)
	}

	t.Run("running job classifies children after cancel", func(t *testing.T) {
		t.Parallel()

		tree := newFakeTree("/data/d1/", "/data/d2/", "/data/f.txt")
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		lister := ListerFuncs{
			ListChildrenFunc: func(c context.Context, sess Session, dir string) ([]string, error) {
				names, err := tree.ListChildren(c, sess, dir)
				if dir == "/data" {
					cancel()
				}
				return names, err
			},
			IsDirFunc: func(c context.Context, sess Session, p string) (bool, error) {
				if err := c.Err(); err != nil {
					return false, err
				}
				return tree.IsDir(c, sess, p)
			},
		}

		kinds := map[string]bool{}
		include := func(p string, isDir bool) bool {
			kinds[p] = isDir
			return true
		}

		out, err := testWalker(lister, include).Crawl(ctx, "/data", newSessions(1))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(out.Unclassified) != 0 {
			t.Errorf("expected no unclassified children, got %v", out.Unclassified)
		}
		want := map[string]bool{"/data/d1": true, "/data/d2": true, "/data/f.txt": false}
		if !reflect.DeepEqual(kinds, want) {
			t.Errorf("expected %v, got %v", want, kinds)
		}
		if len(out.Abandoned) != 2 {
			t.Errorf("expected both directories abandoned, got %v", out.Abandoned)
		}
	})
}

// TestWalkerArguments tests argument validation.
func TestWalkerArguments(t *testing.T) {
	t.Parallel()

	tree := newFakeTree("/a.txt")

	t.Run("no sessions", func(t *testing.T) {
		t.Parallel()
		_, err := testWalker(tree, nil).Crawl(context.Background(), "/", nil)
		if !errors.Is(err, ErrNoSessions) {
			t.Errorf("expected ErrNoSessions, got %v", err)
		}
	})

	t.Run("empty root", func(t *testing.T) {
		t.Parallel()
		_, err := testWalker(tree, nil).Crawl(context.Background(), "  ", newSessions(1))
		if !errors.Is(err, ErrInvalidRoot) {
			t.Errorf("expected ErrInvalidRoot, got %v", err)
		}
	})
}

// TestWalkerOptions tests option defaults and overrides.
func TestWalkerOptions(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		w := NewWalker(newFakeTree(), nil)
		if w.retry != DefaultRetryPolicy() {
			t.Errorf("expected default retry policy, got %+v", w.retry)
		}
		if w.allowPartialFailure {
			t.Error("expected strict mode by default")
		}
		if w.unclassified != ClassifyAsFile {
			t.Errorf("expected ClassifyAsFile, got %s", w.unclassified)
		}
		if w.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("invalid values are ignored", func(t *testing.T) {
		t.Parallel()

		w := NewWalker(newFakeTree(), nil, WithMaxRetries(0), WithBackoff(-1))
		if w.retry != DefaultRetryPolicy() {
			t.Errorf("expected default retry policy, got %+v", w.retry)
		}
	})

	t.Run("retry policy replaces both values", func(t *testing.T) {
		t.Parallel()

		want := RetryPolicy{MaxRetries: 5, Backoff: 2 * time.Millisecond}
		w := NewWalker(newFakeTree(), nil, WithRetryPolicy(want))
		if w.retry != want {
			t.Errorf("expected %+v, got %+v", want, w.retry)
		}
	})

	t.Run("policy names", func(t *testing.T) {
		t.Parallel()

		if ClassifyAsFile.String() != "file" || SkipUnclassified.String() != "skip" {
			t.Error("unexpected policy names")
		}
	})
}
