package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"

	"github.com/nao1215/treecrawl/internal/crawler"
)

// maxIndexSize bounds the size of an index page read into memory.
const maxIndexSize = 16 << 20

// HTTPSession is the per-worker state of the HTTPIndex backend.
type HTTPSession struct {
	// ID is the worker index.
	ID int

	// kinds caches the classification of links seen while listing, keyed
	// by the canonical crawl path.
	kinds map[string]bool
}

// HTTPIndex lists web server auto-generated directory indexes.
//
// A link ending in "/" is a directory. IsDir answers from the links seen
// while listing the parent and falls back to probing the server when a path
// was never listed by this session.
type HTTPIndex struct {
	base   *url.URL
	client *http.Client
	logger *slog.Logger
}

// NewHTTPIndex creates an index backend. Crawl paths are resolved against
// base, which should carry only scheme, host and optional user info.
func NewHTTPIndex(base *url.URL, opts ...Option) *HTTPIndex {
	o := newOptions(opts)
	return &HTTPIndex{
		base:   base,
		client: NewHTTPClient(o.dialer, o.timeout, o.headers),
		logger: o.logger,
	}
}

// Driver implements Backend.
func (h *HTTPIndex) Driver() string {
	return DriverHTTP
}

// Open implements Backend.
func (h *HTTPIndex) Open(_ context.Context, n int) ([]crawler.Session, error) {
	sessions := make([]crawler.Session, n)
	for i := range sessions {
		sessions[i] = &HTTPSession{ID: i, kinds: make(map[string]bool)}
	}
	return sessions, nil
}

// Close implements Backend.
func (h *HTTPIndex) Close([]crawler.Session) error {
	h.client.CloseIdleConnections()
	return nil
}

// urlFor returns the URL of crawl path p. Directories get a trailing slash.
func (h *HTTPIndex) urlFor(p string, dir bool) *url.URL {
	u := *h.base
	u.Path = crawler.NormalizePath(p)
	if dir && u.Path != "/" {
		u.Path += "/"
	}
	u.RawPath = ""
	return &u
}

// ListChildren implements crawler.Lister.
func (h *HTTPIndex) ListChildren(ctx context.Context, sess crawler.Session, dir string) ([]string, error) {
	s, ok := sess.(*HTTPSession)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrSessionType, sess)
	}

	page := h.urlFor(dir, true)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s: %s", ErrUnexpectedStatus, page.Redacted(), resp.Status)
	}

	links, err := parseIndex(io.LimitReader(resp.Body, maxIndexSize), resp.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("parse index %s: %w", page.Redacted(), err)
	}

	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Name)
		s.kinds[canonicalName(path.Join(crawler.NormalizePath(dir), l.Name))] = l.Dir
	}

	h.logger.Debug("index page parsed", "url", page.Redacted(), "links", len(links))
	return dedupeNames(names), nil
}

// IsDir implements crawler.Lister.
func (h *HTTPIndex) IsDir(ctx context.Context, sess crawler.Session, p string) (bool, error) {
	s, ok := sess.(*HTTPSession)
	if !ok {
		return false, fmt.Errorf("%w: got %T", ErrSessionType, sess)
	}

	if isDir, ok := s.kinds[canonicalName(crawler.NormalizePath(p))]; ok {
		return isDir, nil
	}

	// Not listed by this session: ask the server whether p/ exists.
	target := h.urlFor(p, true)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.String(), nil)
	if err != nil {
		return false, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("%w: HEAD %s: %s", ErrUnexpectedStatus, target.Redacted(), resp.Status)
	}
}
