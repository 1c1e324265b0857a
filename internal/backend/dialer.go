package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 handshake in CheckProxy.
const checkProxyTimeout = 2 * time.Second

// NewDialer returns a direct dialer when proxyAddress is empty, otherwise a
// SOCKS5 dialer through proxyAddress ("host:port").
//
// The proxy is not contacted here; call CheckProxy to verify it.
func NewDialer(proxyAddress string) (proxy.Dialer, error) {
	if proxyAddress == "" {
		return proxy.Direct, nil
	}
	if !isValidProxyAddress(proxyAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, proxyAddress)
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return dialer, nil
}

// isValidProxyAddress checks that address is "host:port" with a port in range.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// SOCKS5 protocol constants
const (
	socks5Version  = 0x05
	socks5AuthNone = 0x00
)

// CheckProxy performs a SOCKS5 greeting against proxyAddress and verifies
// that the proxy accepts unauthenticated clients.
func CheckProxy(ctx context.Context, proxyAddress string) error {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", proxyAddress)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}

	// Client sends: version + number of methods + methods.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}

	// Server responds: version + selected method.
	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyNotSOCKS5, err)
	}
	if resp[0] != socks5Version || resp[1] != socks5AuthNone {
		return ErrProxyNotSOCKS5
	}
	return nil
}

// dialContext dials through dialer respecting ctx.
//
// proxy.Dialer may not support contexts. When it does not, the dial runs in
// a goroutine and a cancelled context abandons it; a connection that arrives
// later is closed.
func dialContext(ctx context.Context, dialer proxy.Dialer, network, address string) (net.Conn, error) {
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, err := dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close() //nolint:errcheck // abandoned connection
			}
		}()
		return nil, ctx.Err()
	}
}

// NewHTTPClient creates an HTTP client whose connections go through dialer.
// headers are added to every request, including redirects.
func NewHTTPClient(dialer proxy.Dialer, timeout time.Duration, headers map[string]string) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialContext(ctx, dialer, network, addr)
		},
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	var rt http.RoundTripper = transport
	if len(headers) > 0 {
		rt = &headerInjectingTransport{base: transport, headers: headers}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// headerInjectingTransport adds fixed headers to every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}
