package main

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// syncBuffer is a bytes.Buffer that the logger and the status output can
// share across goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// executeCmd runs the root command with args and returns stdout, stderr
// and the command error.
func executeCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr syncBuffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a configuration file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".treecrawl")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// writeTree creates files (and their parent directories) below root.
func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()

	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(f), 0600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

// crawlPath converts a host path to the path used in the manifest.
func crawlPath(p string) string {
	return filepath.ToSlash(p)
}

// fastFlags keeps failing crawls short in tests.
var fastFlags = []string{"--backoff", "1ms", "-r", "1", "--progress", "0"}
