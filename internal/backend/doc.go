// Package backend provides the dataset backends the crawler lists through.
//
// # Architecture
//
// Every backend implements crawler.Lister plus session management:
//
//	type Backend interface {
//	    crawler.Lister
//	    Driver() string
//	    Open(ctx context.Context, n int) ([]crawler.Session, error)
//	    Close(sessions []crawler.Session) error
//	}
//
// Open creates one session per crawl worker. A session is never shared
// between workers, so session types carry no locks.
//
// Design decision: Each backend is a separate type rather than one generic
// client because:
//  1. FTP needs a stateful control connection per worker, HTTP only a client
//  2. Failure classification differs per protocol (550 vs 404 vs ENOENT)
//  3. Each backend can be tested against an in-process server
//
// # Supported Backends
//
//   - Local: a directory tree on the host filesystem
//   - FTP: an FTP server, one control connection per session, passive mode
//   - HTTPIndex: Apache/nginx style auto-generated directory index pages
//
// Resolve picks the backend from the target's URL scheme.
//
// # Network Access
//
// FTP data and control connections and HTTP requests are made through a
// golang.org/x/net/proxy Dialer. By default this is a direct dialer; a
// SOCKS5 proxy can be configured with NewDialer.
package backend
