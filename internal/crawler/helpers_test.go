package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// errBackend is the error returned by fakeTree for injected failures.
var errBackend = errors.New("backend unavailable")

// testSession is a distinct pointer per worker so fakeTree can detect two
// workers sharing one session or one worker running two jobs at once.
type testSession struct {
	id int
}

// newSessions creates n distinct sessions.
func newSessions(n int) []Session {
	sessions := make([]Session, n)
	for i := range sessions {
		sessions[i] = &testSession{id: i}
	}
	return sessions
}

// fakeTree is an in-memory Lister.
// Paths ending in "/" passed to newFakeTree are directories; parents are
// created implicitly.
type fakeTree struct {
	mu sync.Mutex

	// children maps a directory to its child names.
	children map[string][]string

	// dirs is the set of directory paths.
	dirs map[string]bool

	// listFailures maps a directory to the number of listing failures to
	// inject before succeeding. -1 fails forever.
	listFailures map[string]int

	// isDirFailures works like listFailures for IsDir.
	isDirFailures map[string]int

	// listCalls counts ListChildren calls per directory.
	listCalls map[string]int

	// inflight counts running calls per session.
	inflight map[Session]int

	// violations counts calls that overlapped on the same session.
	violations int

	// delay is applied to every ListChildren call.
	delay time.Duration

	// block, when set, is consulted before listing; a non-nil channel is
	// waited on.
	block func(dir string) <-chan struct{}
}

func newFakeTree(paths ...string) *fakeTree {
	t := &fakeTree{
		children:      make(map[string][]string),
		dirs:          map[string]bool{"/": true},
		listFailures:  make(map[string]int),
		isDirFailures: make(map[string]int),
		listCalls:     make(map[string]int),
		inflight:      make(map[Session]int),
	}
	for _, p := range paths {
		t.add(p)
	}
	return t
}

func (t *fakeTree) add(p string) {
	isDir := strings.HasSuffix(p, "/")
	p = NormalizePath(p)
	if p == "/" {
		return
	}

	parent := path.Dir(p)
	if !t.dirs[parent] {
		t.add(parent + "/")
	}

	if isDir {
		if t.dirs[p] {
			return
		}
		t.dirs[p] = true
	}
	t.children[parent] = append(t.children[parent], path.Base(p))
}

func (t *fakeTree) enter(sess Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[sess]++
	if t.inflight[sess] > 1 {
		t.violations++
	}
}

func (t *fakeTree) leave(sess Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[sess]--
}

// failing consumes one injected failure for p, if any.
func failing(failures map[string]int, p string) bool {
	n, ok := failures[p]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		failures[p] = n - 1
	}
	return true
}

func (t *fakeTree) ListChildren(ctx context.Context, sess Session, dir string) ([]string, error) {
	t.enter(sess)
	defer t.leave(sess)

	if t.block != nil {
		if ch := t.block(dir); ch != nil {
			select {
			case <-ch:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if t.delay > 0 {
		time.Sleep(t.delay)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.listCalls[dir]++
	if failing(t.listFailures, dir) {
		return nil, errBackend
	}
	if !t.dirs[dir] {
		return nil, errors.New("not a directory: " + dir)
	}

	names := make([]string, len(t.children[dir]))
	copy(names, t.children[dir])
	return names, nil
}

func (t *fakeTree) IsDir(_ context.Context, sess Session, p string) (bool, error) {
	t.enter(sess)
	defer t.leave(sess)

	t.mu.Lock()
	defer t.mu.Unlock()

	if failing(t.isDirFailures, p) {
		return false, errBackend
	}
	return t.dirs[p], nil
}

func (t *fakeTree) calls(dir string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listCalls[dir]
}

// recorder is an IncludeFunc that remembers what it was offered.
type recorder struct {
	seen   map[string]bool
	order  []string
	reject map[string]bool
}

func newRecorder(reject ...string) *recorder {
	r := &recorder{
		seen:   make(map[string]bool),
		reject: make(map[string]bool),
	}
	for _, p := range reject {
		r.reject[p] = true
	}
	return r
}

func (r *recorder) include(p string, isDir bool) bool {
	if r.reject[p] {
		return false
	}
	r.seen[p] = isDir
	r.order = append(r.order, p)
	return true
}

func (r *recorder) paths() []string {
	out := make([]string, 0, len(r.seen))
	for p := range r.seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// quietLogger discards all output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testWalker builds a Walker with zero backoff and a silent logger.
func testWalker(l Lister, include IncludeFunc, opts ...WalkerOption) *Walker {
	base := []WalkerOption{
		WithBackoff(0),
		WithWalkerLogger(quietLogger()),
	}
	return NewWalker(l, include, append(base, opts...)...)
}
