package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/nao1215/treecrawl/internal/crawler"
	"golang.org/x/net/proxy"
)

// Driver tags recorded on manifest entries.
const (
	DriverLocal = "local"
	DriverFTP   = "ftp"
	DriverHTTP  = "http"
)

// defaultTimeout bounds a single backend call.
const defaultTimeout = 30 * time.Second

// Backend is a crawl target that can hand out worker sessions.
type Backend interface {
	crawler.Lister

	// Driver returns the tag recorded on manifest entries.
	Driver() string

	// Open creates n independent sessions, one per worker.
	// On error, sessions created so far are closed.
	Open(ctx context.Context, n int) ([]crawler.Session, error)

	// Close releases the sessions returned by Open.
	Close(sessions []crawler.Session) error
}

// options holds settings shared by all backends.
type options struct {
	dialer  proxy.Dialer
	timeout time.Duration
	headers map[string]string
	logger  *slog.Logger
}

// Option configures a backend.
type Option func(*options)

// WithDialer sets the dialer for network backends.
func WithDialer(d proxy.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithTimeout sets the deadline for a single backend call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHeaders sets extra HTTP headers for the index backend.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) {
		o.headers = headers
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{
		dialer:  proxy.Direct,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Resolve chooses a backend for target and returns it with the crawl root
// inside the backend's path space.
//
// Supported targets:
//   - "/srv/data", "./data" or "file:///srv/data": Local rooted at "/"
//     with the absolute directory as crawl root
//   - "ftp://[user[:pass]@]host[:port]/path": FTP
//   - "http://host/path/" or "https://...": HTTPIndex
func Resolve(target string, opts ...Option) (Backend, string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, "", ErrInvalidTarget
	}

	if !strings.Contains(target, "://") {
		return resolveLocal(target, opts)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return resolveLocal(u.Path, opts)
	case "ftp":
		b, err := NewFTP(u, opts...)
		if err != nil {
			return nil, "", err
		}
		return b, crawler.NormalizePath(u.Path), nil
	case "http", "https":
		root := crawler.NormalizePath(u.Path)
		base := *u
		base.Path = ""
		base.RawPath = ""
		base.RawQuery = ""
		base.Fragment = ""
		return NewHTTPIndex(&base, opts...), root, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func resolveLocal(p string, opts []Option) (Backend, string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	return NewLocal(string(filepath.Separator), opts...), crawler.NormalizePath(filepath.ToSlash(abs)), nil
}
