package backend

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/net/proxy"
)

// TestNewDialer tests dialer construction.
func TestNewDialer(t *testing.T) {
	t.Parallel()

	t.Run("empty address is direct", func(t *testing.T) {
		t.Parallel()

		d, err := NewDialer("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d != proxy.Direct {
			t.Error("expected proxy.Direct")
		}
	})

	t.Run("valid proxy address", func(t *testing.T) {
		t.Parallel()

		d, err := NewDialer("127.0.0.1:1080")
		if err != nil || d == nil {
			t.Fatalf("expected dialer, got %v", err)
		}
	})

	invalid := []string{"127.0.0.1", ":1080", "host:0", "host:65536", "host:abc", "a:b:c"}
	for _, addr := range invalid {
		t.Run("invalid "+addr, func(t *testing.T) {
			t.Parallel()

			if _, err := NewDialer(addr); !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("expected ErrInvalidProxyAddress for %q, got %v", addr, err)
			}
		})
	}
}

// TestCheckProxy tests the SOCKS5 greeting check.
func TestCheckProxy(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, reply []byte) string {
		t.Helper()
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { ln.Close() })
		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			buf := make([]byte, 3)
			if _, err := conn.Read(buf); err != nil {
				return
			}
			_, _ = conn.Write(reply)
		}()
		return ln.Addr().String()
	}

	t.Run("accepts a SOCKS5 proxy", func(t *testing.T) {
		t.Parallel()

		if err := CheckProxy(context.Background(), serve(t, []byte{0x05, 0x00})); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})

	t.Run("rejects another protocol", func(t *testing.T) {
		t.Parallel()

		err := CheckProxy(context.Background(), serve(t, []byte("HTTP/1.1 400 Bad Request\r\n")))
		if !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("expected ErrProxyNotSOCKS5, got %v", err)
		}
	})

	t.Run("rejects a proxy requiring auth", func(t *testing.T) {
		t.Parallel()

		err := CheckProxy(context.Background(), serve(t, []byte{0x05, 0xFF}))
		if !errors.Is(err, ErrProxyNotSOCKS5) {
			t.Errorf("expected ErrProxyNotSOCKS5, got %v", err)
		}
	})

	t.Run("unreachable proxy", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		addr := ln.Addr().String()
		ln.Close()

		if err := CheckProxy(context.Background(), addr); !errors.Is(err, ErrProxyCannotConnect) {
			t.Errorf("expected ErrProxyCannotConnect, got %v", err)
		}
	})
}

// TestNewHTTPClient tests header injection and timeouts.
func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen", r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	client := NewHTTPClient(proxy.Direct, 5*time.Second, map[string]string{"Authorization": "Bearer t"})
	if client.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", client.Timeout)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if resp.Header.Get("X-Seen") != "Bearer t" {
		t.Errorf("expected injected header, got %q", resp.Header.Get("X-Seen"))
	}
}
