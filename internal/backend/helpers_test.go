package backend

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFTP is a minimal in-process FTP server over a fixed tree.
type fakeFTP struct {
	ln net.Listener

	mu sync.Mutex

	// tree maps a directory to its child names.
	tree map[string][]string

	// files is the set of file paths.
	files map[string]bool

	banner   string
	user     string
	password string

	// noEPSV makes the server reject EPSV.
	noEPSV bool

	// dropNLST closes the control connection on the next n NLST commands.
	dropNLST int

	// commands records every verb received.
	commands []string
}

func startFakeFTP(t *testing.T) *fakeFTP {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	f := &fakeFTP{
		ln: ln,
		tree: map[string][]string{
			"/":          {"pub"},
			"/pub":       {"a.txt", "b.txt", "sub", "empty"},
			"/pub/sub":   {"c.txt"},
			"/pub/empty": {},
		},
		files: map[string]bool{
			"/pub/a.txt":     true,
			"/pub/b.txt":     true,
			"/pub/sub/c.txt": true,
		},
		banner:   "(vsFTPd 3.0.5)",
		user:     "alice",
		password: "s3cret",
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	return f
}

func (f *fakeFTP) url() string {
	return fmt.Sprintf("ftp://%s:%s@%s/pub", f.user, f.password, f.ln.Addr())
}

func (f *fakeFTP) count(verb string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c == verb {
			n++
		}
	}
	return n
}

// waitCount waits briefly for the server to record n commands of verb.
// The client does not wait for the reply to QUIT.
func (f *fakeFTP) waitCount(verb string, n int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.count(verb) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func (f *fakeFTP) serve(conn net.Conn) {
	tp := textproto.NewConn(conn)
	defer tp.Close()

	reply := func(format string, args ...any) bool {
		return tp.PrintfLine(format, args...) == nil
	}

	if !reply("220-Welcome\r\n220 %s", f.banner) {
		return
	}

	var data net.Listener
	defer func() {
		if data != nil {
			data.Close()
		}
	}()
	openData := func() (int, bool) {
		if data != nil {
			data.Close()
		}
		var err error
		data, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return 0, false
		}
		return data.Addr().(*net.TCPAddr).Port, true
	}

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		f.mu.Lock()
		f.commands = append(f.commands, verb)
		f.mu.Unlock()

		switch verb {
		case "USER":
			if arg != f.user {
				reply("530 Login incorrect.")
				continue
			}
			reply("331 Please specify the password.")
		case "PASS":
			if arg != f.password {
				reply("530 Login incorrect.")
				continue
			}
			reply("230 Login successful.")
		case "TYPE":
			reply("200 Switching to Binary mode.")
		case "EPSV":
			f.mu.Lock()
			noEPSV := f.noEPSV
			f.mu.Unlock()
			if noEPSV {
				reply("500 Unknown command.")
				continue
			}
			port, ok := openData()
			if !ok {
				reply("425 Cannot open data connection.")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", port)
		case "PASV":
			port, ok := openData()
			if !ok {
				reply("425 Cannot open data connection.")
				continue
			}
			reply("227 Entering Passive Mode (10,0,0,1,%d,%d).", port>>8, port&0xff)
		case "NLST":
			f.mu.Lock()
			drop := f.dropNLST > 0
			if drop {
				f.dropNLST--
			}
			names, ok := f.tree[arg]
			f.mu.Unlock()

			if drop {
				return
			}
			if data == nil {
				reply("425 Use PASV first.")
				continue
			}
			if !ok {
				data.Close()
				data = nil
				reply("550 Failed to open directory.")
				continue
			}
			reply("150 Here comes the directory listing.")
			dc, err := data.Accept()
			if err != nil {
				return
			}
			for _, n := range names {
				fmt.Fprintf(dc, "%s\r\n", n)
			}
			dc.Close()
			data.Close()
			data = nil
			reply("226 Directory send OK.")
		case "CWD":
			f.mu.Lock()
			_, isDir := f.tree[arg]
			f.mu.Unlock()
			if isDir {
				reply("250 Directory successfully changed.")
			} else {
				reply("550 Failed to change directory.")
			}
		case "QUIT":
			reply("221 Goodbye.")
			return
		default:
			reply("502 Command not implemented.")
		}
	}
}
