package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/treecrawl/internal/crawler"
)

// LocalSession identifies a worker of the Local backend.
// The filesystem needs no per-worker state.
type LocalSession struct {
	// ID is the worker index.
	ID int
}

// Local lists a directory tree on the host filesystem.
//
// The crawl path "/" is the base directory. Symbolic links are reported as
// files and never followed, so a link cycle cannot trap the crawl.
type Local struct {
	base   string
	logger *slog.Logger
}

// NewLocal creates a Local backend rooted at base.
func NewLocal(base string, opts ...Option) *Local {
	o := newOptions(opts)
	return &Local{
		base:   filepath.Clean(base),
		logger: o.logger,
	}
}

// Driver implements Backend.
func (l *Local) Driver() string {
	return DriverLocal
}

// Base returns the host directory mapped to "/".
func (l *Local) Base() string {
	return l.base
}

// Open implements Backend.
func (l *Local) Open(_ context.Context, n int) ([]crawler.Session, error) {
	sessions := make([]crawler.Session, n)
	for i := range sessions {
		sessions[i] = &LocalSession{ID: i}
	}
	return sessions, nil
}

// Close implements Backend.
func (l *Local) Close([]crawler.Session) error {
	return nil
}

// hostPath maps a crawl path to a host path below base.
func (l *Local) hostPath(p string) string {
	rel := strings.TrimPrefix(crawler.NormalizePath(p), "/")
	return filepath.Join(l.base, filepath.FromSlash(rel))
}

// ListChildren implements crawler.Lister.
func (l *Local) ListChildren(ctx context.Context, _ crawler.Session, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(l.hostPath(dir))
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return dedupeNames(names), nil
}

// IsDir implements crawler.Lister.
func (l *Local) IsDir(ctx context.Context, _ crawler.Session, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	info, err := os.Lstat(l.hostPath(p))
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		l.logger.Debug("symlink treated as file", "path", p)
		return false, nil
	}
	return info.IsDir(), nil
}
