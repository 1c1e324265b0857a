package crawler

import (
	"context"
	"path"
	"strings"
)

// Session is the opaque per-worker state handed back to the Lister on every call.
// A session is used by exactly one worker, so it does not need to be safe for
// concurrent use.
type Session any

// Lister is the backend capability the crawler depends on.
//
// Implementations must return an error when a call fails. Returning an empty
// listing in place of an error would make a failed directory look empty.
// No ordering of the returned names is assumed.
type Lister interface {
	// ListChildren returns the names of the immediate children of dir.
	ListChildren(ctx context.Context, sess Session, dir string) ([]string, error)

	// IsDir reports whether the absolute path p is a directory.
	IsDir(ctx context.Context, sess Session, p string) (bool, error)
}

// IncludeFunc decides whether a discovered path becomes part of the result.
// For directories, returning false also stops the crawler from exploring it.
type IncludeFunc func(p string, isDir bool) bool

// ListerFuncs adapts a pair of functions to the Lister interface.
type ListerFuncs struct {
	// ListChildrenFunc implements ListChildren.
	ListChildrenFunc func(ctx context.Context, sess Session, dir string) ([]string, error)

	// IsDirFunc implements IsDir.
	IsDirFunc func(ctx context.Context, sess Session, p string) (bool, error)
}

// ListChildren implements Lister.
func (f ListerFuncs) ListChildren(ctx context.Context, sess Session, dir string) ([]string, error) {
	return f.ListChildrenFunc(ctx, sess, dir)
}

// IsDir implements Lister.
func (f ListerFuncs) IsDir(ctx context.Context, sess Session, p string) (bool, error) {
	return f.IsDirFunc(ctx, sess, p)
}

// NormalizePath turns p into a clean absolute slash path.
// Repeated and trailing slashes are removed; the root is "/".
// A backslash is an ordinary filename character and is left alone; host
// paths are converted with filepath.ToSlash before they get here.
func NormalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// JoinPath joins a directory and a single child name into a normalized
// absolute path. name must already be one path element (see childName).
func JoinPath(dir, name string) string {
	return path.Join(NormalizePath(dir), name)
}

// childName reduces a name returned by a backend to a single path element.
// Some backends return full paths or a trailing slash for directories.
// It returns "" for names that must be skipped.
func childName(name string) string {
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}
