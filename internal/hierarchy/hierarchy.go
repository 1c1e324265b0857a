package hierarchy

import (
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/nao1215/treecrawl/internal/model"
	"golang.org/x/crypto/sha3"
)

// RootPath is the key of the root directory.
const RootPath = "/"

// Hierarchy maps absolute paths to manifest entries.
// Entries are never replaced once inserted.
type Hierarchy struct {
	entries map[string]model.Entry
}

// New creates an empty hierarchy.
func New() *Hierarchy {
	return &Hierarchy{entries: make(map[string]model.Entry)}
}

// Insert adds e under its path.
// It returns ErrDuplicatePath if the path is already present; the existing
// entry is left untouched.
func (h *Hierarchy) Insert(e model.Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	p := e.EntryPath()
	if _, ok := h.entries[p]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, p)
	}
	h.entries[p] = e
	return nil
}

// Get returns the entry stored under p.
func (h *Hierarchy) Get(p string) (model.Entry, bool) {
	e, ok := h.entries[p]
	return e, ok
}

// Has reports whether p is a key.
func (h *Hierarchy) Has(p string) bool {
	_, ok := h.entries[p]
	return ok
}

// Len returns the number of entries.
func (h *Hierarchy) Len() int {
	return len(h.entries)
}

// Counts returns the number of file and directory entries.
func (h *Hierarchy) Counts() (files, dirs int) {
	for _, e := range h.entries {
		if e.Kind() == model.KindDir {
			dirs++
		} else {
			files++
		}
	}
	return files, dirs
}

// Paths returns all keys in lexical order.
func (h *Hierarchy) Paths() []string {
	paths := make([]string, 0, len(h.entries))
	for p := range h.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Entries returns all entries ordered by path.
func (h *Hierarchy) Entries() []model.Entry {
	paths := h.Paths()
	entries := make([]model.Entry, len(paths))
	for i, p := range paths {
		entries[i] = h.entries[p]
	}
	return entries
}

// Validate checks the tree invariants: the root is a directory and every
// other entry's nearest ancestor among the keys is a directory.
// All violations are reported together.
func (h *Hierarchy) Validate() error {
	root, ok := h.entries[RootPath]
	if !ok {
		return ErrMissingRoot
	}
	if root.Kind() != model.KindDir {
		return ErrRootNotDir
	}

	var bad []string
	for _, p := range h.Paths() {
		if p == RootPath {
			continue
		}
		parent, ok := h.nearestAncestor(p)
		if !ok || parent.Kind() != model.KindDir {
			bad = append(bad, p)
		}
	}
	if len(bad) == 0 {
		return nil
	}

	const shown = 5
	detail := strings.Join(bad[:min(len(bad), shown)], ", ")
	if len(bad) > shown {
		detail += fmt.Sprintf(" and %d more", len(bad)-shown)
	}
	return fmt.Errorf("%w: %s", ErrParentNotDir, detail)
}

// nearestAncestor walks up from p until it finds a key.
func (h *Hierarchy) nearestAncestor(p string) (model.Entry, bool) {
	for p != RootPath {
		p = path.Dir(p)
		if e, ok := h.entries[p]; ok {
			return e, true
		}
	}
	return nil, false
}

// Fingerprint returns a hex SHA3-256 digest of the sorted (kind, path) pairs.
// Two crawls of an unchanged tree produce the same fingerprint; metadata is
// not part of the digest.
func (h *Hierarchy) Fingerprint() string {
	d := sha3.New256()
	for _, e := range h.Entries() {
		// Writes to a hash never fail.
		_, _ = fmt.Fprintf(d, "%s\x00%s\n", e.Kind(), e.EntryPath()) //nolint:errcheck
	}
	return hex.EncodeToString(d.Sum(nil))
}
