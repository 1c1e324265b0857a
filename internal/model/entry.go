package model

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"time"
)

// EntryKind distinguishes the two manifest record variants.
type EntryKind int

const (
	// KindFile marks a FileEntry.
	KindFile EntryKind = iota

	// KindDir marks a DirEntry.
	KindDir
)

// String returns the lowercase name used in reports and the database.
func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}

// ParseEntryKind converts the output of EntryKind.String back to a kind.
func ParseEntryKind(s string) (EntryKind, error) {
	switch s {
	case "file":
		return KindFile, nil
	case "dir":
		return KindDir, nil
	default:
		return 0, fmt.Errorf("unknown entry kind %q", s)
	}
}

// Entry is one record of the manifest hierarchy.
// The set of implementations is closed: only FileEntry and DirEntry satisfy it,
// so a type switch over the two is exhaustive.
//
// Design decision: We use a sealed interface rather than a struct with a
// "type" string because:
//  1. Files carry a query string, directories do not
//  2. The compiler prevents constructing a third variant by accident
//  3. Serializers switch on the concrete type instead of comparing names
type Entry interface {
	// EntryPath returns the absolute path that keys the entry.
	EntryPath() string

	// Kind reports which variant the entry is.
	Kind() EntryKind

	// Meta returns the metadata shared by both variants.
	Meta() EntryMeta

	sealed()
}

// EntryMeta holds the metadata common to files and directories.
type EntryMeta struct {
	// Revalidation is how long a consumer may cache the entry before checking it again.
	Revalidation time.Duration `json:"revalidation"`

	// Driver names the backend that produced the entry (e.g. "local", "ftp").
	Driver string `json:"driver"`

	// Permission holds the permission bits advertised for the entry.
	Permission fs.FileMode `json:"permission"`
}

// FileEntry is a leaf of the hierarchy.
type FileEntry struct {
	Path string `json:"path"`
	EntryMeta

	// QueryString is appended to the file URL when the manifest is consumed.
	QueryString string `json:"query_string,omitempty"`
}

// DirEntry is an interior node of the hierarchy.
type DirEntry struct {
	Path string `json:"path"`
	EntryMeta
}

// EntryPath implements Entry.
func (e *FileEntry) EntryPath() string { return e.Path }

// Kind implements Entry.
func (e *FileEntry) Kind() EntryKind { return KindFile }

// Meta implements Entry.
func (e *FileEntry) Meta() EntryMeta { return e.EntryMeta }

func (e *FileEntry) sealed() {}

// EntryPath implements Entry.
func (e *DirEntry) EntryPath() string { return e.Path }

// Kind implements Entry.
func (e *DirEntry) Kind() EntryKind { return KindDir }

// Meta implements Entry.
func (e *DirEntry) Meta() EntryMeta { return e.EntryMeta }

func (e *DirEntry) sealed() {}

// entryJSON is the flattened wire form of an Entry.
type entryJSON struct {
	Kind         string `json:"kind"`
	Path         string `json:"path"`
	Revalidation string `json:"revalidation"`
	Driver       string `json:"driver"`
	Permission   string `json:"permission"`
	QueryString  string `json:"query_string,omitempty"`
}

// MarshalEntry converts an entry into its JSON form.
// Permissions are written in octal and durations in Go duration syntax so the
// output stays readable.
func MarshalEntry(e Entry) ([]byte, error) {
	meta := e.Meta()
	out := entryJSON{
		Kind:         e.Kind().String(),
		Path:         e.EntryPath(),
		Revalidation: meta.Revalidation.String(),
		Driver:       meta.Driver,
		Permission:   fmt.Sprintf("%04o", uint32(meta.Permission.Perm())),
	}
	if f, ok := e.(*FileEntry); ok {
		out.QueryString = f.QueryString
	}
	return json.Marshal(out)
}

// UnmarshalEntry is the inverse of MarshalEntry.
func UnmarshalEntry(data []byte) (Entry, error) {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}

	kind, err := ParseEntryKind(in.Kind)
	if err != nil {
		return nil, err
	}

	var meta EntryMeta
	meta.Driver = in.Driver
	if in.Revalidation != "" {
		meta.Revalidation, err = time.ParseDuration(in.Revalidation)
		if err != nil {
			return nil, fmt.Errorf("invalid revalidation for %s: %w", in.Path, err)
		}
	}
	if in.Permission != "" {
		var perm uint32
		if _, err := fmt.Sscanf(in.Permission, "%o", &perm); err != nil {
			return nil, fmt.Errorf("invalid permission for %s: %w", in.Path, err)
		}
		meta.Permission = fs.FileMode(perm)
	}

	if kind == KindDir {
		return &DirEntry{Path: in.Path, EntryMeta: meta}, nil
	}
	return &FileEntry{Path: in.Path, EntryMeta: meta, QueryString: in.QueryString}, nil
}
