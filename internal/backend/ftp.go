package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/nao1215/treecrawl/internal/crawler"
	"golang.org/x/net/proxy"
)

// maxGreeting bounds how much of the control stream is kept to read the
// welcome banner.
const maxGreeting = 4096

// FTPSession is one control connection owned by a single worker.
type FTPSession struct {
	// ID is the worker index.
	ID int

	// Banner is the server's welcome message.
	Banner string

	// Server is the server software detected from the banner, if any.
	Server string

	conn *ftp.ServerConn

	// ctrl is the raw control connection, closed to abort a call whose
	// context ends.
	ctrl net.Conn
}

// FTP lists an FTP server with NLST and classifies paths with a CWD probe.
//
// Each session holds its own control connection. A session whose connection
// broke is reconnected on its next call, so the crawler's retries can
// recover from dropped connections.
type FTP struct {
	addr     string
	host     string
	user     string
	password string
	dialer   proxy.Dialer
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFTP creates an FTP backend for u.
// Credentials are taken from the URL; anonymous login is used otherwise.
func NewFTP(u *url.URL, opts ...Option) (*FTP, error) {
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing FTP host", ErrInvalidTarget)
	}

	o := newOptions(opts)
	port := u.Port()
	if port == "" {
		port = "21"
	}

	f := &FTP{
		addr:     net.JoinHostPort(u.Hostname(), port),
		host:     u.Hostname(),
		user:     "anonymous",
		password: "anonymous@",
		dialer:   o.dialer,
		timeout:  o.timeout,
		logger:   o.logger,
	}
	if u.User != nil {
		f.user = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			f.password = pw
		}
	}
	return f, nil
}

// Driver implements Backend.
func (f *FTP) Driver() string {
	return DriverFTP
}

// Addr returns the control connection address.
func (f *FTP) Addr() string {
	return f.addr
}

// Open implements Backend. It logs in n control connections.
func (f *FTP) Open(ctx context.Context, n int) ([]crawler.Session, error) {
	sessions := make([]crawler.Session, 0, n)
	for i := range n {
		s := &FTPSession{ID: i}
		if err := f.connect(ctx, s); err != nil {
			_ = f.Close(sessions) //nolint:errcheck // the dial error is more useful
			return nil, fmt.Errorf("open ftp session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}

	if len(sessions) > 0 {
		first, _ := sessions[0].(*FTPSession) //nolint:errcheck // created above
		f.logger.Info("ftp sessions opened",
			"addr", f.addr,
			"sessions", len(sessions),
			"server", first.Server,
		)
	}
	return sessions, nil
}

// Close implements Backend. It sends QUIT on every open session.
func (f *FTP) Close(sessions []crawler.Session) error {
	var errs []error
	for _, sess := range sessions {
		s, ok := sess.(*FTPSession)
		if !ok || s.conn == nil {
			continue
		}
		if err := s.conn.Quit(); err != nil {
			f.logger.Debug("ftp quit failed", "session", s.ID, "error", err)
			errs = append(errs, err)
		}
		s.conn, s.ctrl = nil, nil
	}
	return errors.Join(errs...)
}

// ListChildren implements crawler.Lister using NLST.
func (f *FTP) ListChildren(ctx context.Context, sess crawler.Session, dir string) ([]string, error) {
	s, err := f.ready(ctx, sess, dir)
	if err != nil {
		return nil, err
	}
	defer context.AfterFunc(ctx, s.abort)()

	names, err := s.conn.NameList(dir)
	if err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileActionIgnored &&
			strings.Contains(strings.ToLower(tpErr.Msg), "no files") {
			return []string{}, nil
		}
		return nil, f.fail(s, "NLST", err)
	}
	return dedupeNames(names), nil
}

// IsDir implements crawler.Lister with a CWD probe: a 2xx reply means a
// directory, 550 means a file, anything else is an error.
func (f *FTP) IsDir(ctx context.Context, sess crawler.Session, p string) (bool, error) {
	s, err := f.ready(ctx, sess, p)
	if err != nil {
		return false, err
	}
	defer context.AfterFunc(ctx, s.abort)()

	err = s.conn.ChangeDir(p)
	if err == nil {
		return true, nil
	}

	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code/100 == 2:
			return true, nil
		case tpErr.Code == ftp.StatusFileUnavailable:
			return false, nil
		}
	}
	return false, f.fail(s, "CWD", err)
}

// ready validates the session and path and reconnects a broken session.
func (f *FTP) ready(ctx context.Context, sess crawler.Session, p string) (*FTPSession, error) {
	s, ok := sess.(*FTPSession)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrSessionType, sess)
	}
	if strings.ContainsAny(p, "\r\n") {
		return nil, fmt.Errorf("%w: path contains a line break: %q", ErrInvalidTarget, p)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.conn == nil {
		f.logger.Debug("reconnecting ftp session", "session", s.ID)
		if err := f.connect(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// connect dials, records the greeting and logs in.
func (f *FTP) connect(ctx context.Context, s *FTPSession) error {
	var greeting *recordingConn
	dial := func(network, address string) (net.Conn, error) {
		parent := ctx
		if greeting != nil {
			// Data connections are dialed long after connect returns.
			address = f.dataAddress(address)
			parent = context.Background()
		}
		dctx, cancel := context.WithTimeout(parent, f.timeout)
		defer cancel()

		raw, err := dialContext(dctx, f.dialer, network, address)
		if err != nil {
			return nil, err
		}
		conn := &timeoutConn{Conn: raw, timeout: f.timeout}
		if greeting == nil {
			greeting = &recordingConn{Conn: conn, recording: true}
			s.ctrl = raw
			return greeting, nil
		}
		return conn, nil
	}

	conn, err := ftp.Dial(f.addr, ftp.DialWithDialFunc(dial))
	if err != nil {
		return fmt.Errorf("ftp dial %s: %w", f.addr, err)
	}
	greeting.recording = false
	s.Banner = parseGreeting(greeting.buf.Bytes())
	s.Server = DetectServer(s.Banner)

	if err := conn.Login(f.user, f.password); err != nil {
		_ = conn.Quit() //nolint:errcheck // the login error is more useful
		return fmt.Errorf("ftp login %s: %w", f.user, err)
	}
	s.conn = conn
	return nil
}

// dataAddress replaces the host of a passive mode address with the control
// host.
//
// Design decision: The address in the passive reply is ignored because:
//  1. Servers behind NAT often report their private address
//  2. Through a SOCKS5 proxy the control host is the only name that resolves
func (f *FTP) dataAddress(address string) string {
	_, port, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	return net.JoinHostPort(f.host, port)
}

// fail converts a negative reply to *FTPError and resets the session on
// any other error.
func (f *FTP) fail(s *FTPSession, verb string, err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return &FTPError{Cmd: verb, Code: tpErr.Code, Msg: tpErr.Msg}
	}
	f.reset(s)
	return fmt.Errorf("ftp %s: %w", verb, err)
}

// reset drops the session's connection so the next call reconnects.
func (f *FTP) reset(s *FTPSession) {
	if s.conn != nil {
		_ = s.conn.Quit() //nolint:errcheck // already failing
	}
	s.conn, s.ctrl = nil, nil
}

// abort unblocks a call in progress by closing the control connection.
// The call then fails and the session is reconnected on next use.
func (s *FTPSession) abort() {
	if s.ctrl != nil {
		_ = s.ctrl.Close() //nolint:errcheck // the pending call reports it
	}
}

// timeoutConn applies the per-call timeout as an idle deadline on every
// read and write.
type timeoutConn struct {
	net.Conn
	timeout time.Duration
}

func (c *timeoutConn) Read(p []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout)) //nolint:errcheck // a failed read reports it
	return c.Conn.Read(p)
}

func (c *timeoutConn) Write(p []byte) (int, error) {
	_ = c.Conn.SetDeadline(time.Now().Add(c.timeout)) //nolint:errcheck // a failed write reports it
	return c.Conn.Write(p)
}

// recordingConn keeps the first bytes read from the control connection so
// the welcome banner, which the FTP client consumes, can still be inspected.
type recordingConn struct {
	net.Conn
	buf       bytes.Buffer
	recording bool
}

func (c *recordingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if c.recording && n > 0 && c.buf.Len() < maxGreeting {
		c.buf.Write(p[:min(n, maxGreeting-c.buf.Len())])
	}
	return n, err
}

// parseGreeting returns the text of the 220 reply at the start of raw.
func parseGreeting(raw []byte) string {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	_, msg, err := r.ReadResponse(ftp.StatusReady)
	if err != nil {
		return ""
	}
	return msg
}

// DetectServer returns the FTP server software named in a welcome banner,
// or "" if it is not recognised.
func DetectServer(banner string) string {
	lower := strings.ToLower(banner)
	switch {
	case strings.Contains(lower, "vsftpd"):
		return "vsFTPd"
	case strings.Contains(lower, "proftpd"):
		return "ProFTPD"
	case strings.Contains(lower, "pure-ftpd"):
		return "Pure-FTPd"
	case strings.Contains(lower, "filezilla"):
		return "FileZilla Server"
	case strings.Contains(lower, "microsoft ftp"):
		return "Microsoft IIS FTP"
	default:
		return ""
	}
}
