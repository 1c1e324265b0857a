package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nao1215/treecrawl/internal/crawler"
	"github.com/nao1215/treecrawl/internal/hierarchy"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *Run) error
	callCount atomic.Int32
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *Run) error {
	m.callCount.Add(1)
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func newTestRun(root string) *Run {
	return NewRun(root, hierarchy.NewBuilder(hierarchy.WithDriver("mem"), hierarchy.WithBuilderLogger(quietLogger())))
}

// writeTree creates the given files (and their parent directories) below
// a fresh temporary directory. Names ending in "/" are created as empty
// directories.
func writeTree(t *testing.T, names ...string) string {
	t.Helper()

	dir := t.TempDir()
	for _, name := range names {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(p, 0o750); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(name), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// memBackend is an in-memory backend. Directories listed in broken fail
// every listing; brokenCalls counts those attempts.
type memBackend struct {
	dirs        map[string][]string
	broken      map[string]bool
	openErr     error
	opened      atomic.Int32
	closed      atomic.Int32
	brokenCalls atomic.Int32
}

var errBroken = errors.New("listing failed")

func newMemBackend(paths ...string) *memBackend {
	m := &memBackend{dirs: map[string][]string{"/": nil}, broken: map[string]bool{}}
	for _, p := range paths {
		isDir := strings.HasSuffix(p, "/")
		p = path.Clean("/" + p)
		if isDir {
			if _, ok := m.dirs[p]; !ok {
				m.dirs[p] = nil
			}
		}
		for child := p; child != "/"; child = path.Dir(child) {
			parent := path.Dir(child)
			if !contains(m.dirs[parent], path.Base(child)) {
				m.dirs[parent] = append(m.dirs[parent], path.Base(child))
			}
			if child != p {
				if _, ok := m.dirs[child]; !ok {
					m.dirs[child] = nil
				}
			}
		}
	}
	for _, children := range m.dirs {
		sort.Strings(children)
	}
	return m
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memBackend) Driver() string { return "mem" }

func (m *memBackend) Open(_ context.Context, n int) ([]crawler.Session, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opened.Add(int32(n))
	sessions := make([]crawler.Session, n)
	for i := range sessions {
		sessions[i] = i
	}
	return sessions, nil
}

func (m *memBackend) Close(sessions []crawler.Session) error {
	m.closed.Add(int32(len(sessions)))
	return nil
}

func (m *memBackend) ListChildren(ctx context.Context, _ crawler.Session, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.broken[dir] {
		m.brokenCalls.Add(1)
		return nil, errBroken
	}
	children, ok := m.dirs[dir]
	if !ok {
		return nil, errors.New("not a directory")
	}
	return children, nil
}

func (m *memBackend) IsDir(_ context.Context, _ crawler.Session, p string) (bool, error) {
	_, ok := m.dirs[p]
	return ok, nil
}
