package hierarchy

import (
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/nao1215/treecrawl/internal/model"
)

// Default metadata values used when no callback is configured.
const (
	// DefaultDirPermission is advertised for directories.
	DefaultDirPermission fs.FileMode = 0o755

	// DefaultFilePermission is advertised for files.
	DefaultFilePermission fs.FileMode = 0o644

	// DefaultRevalidation is the cache lifetime advertised for every entry.
	DefaultRevalidation = 24 * time.Hour
)

// Metadata holds the per-entry callbacks used to fill in entry metadata.
// A nil callback falls back to the package defaults.
type Metadata struct {
	// DirPermission returns the permission bits of a directory.
	DirPermission func(p string) fs.FileMode

	// DirRevalidation returns the revalidation interval of a directory.
	DirRevalidation func(p string) time.Duration

	// FilePermission returns the permission bits of a file.
	FilePermission func(p string) fs.FileMode

	// FileRevalidation returns the revalidation interval of a file.
	FileRevalidation func(p string) time.Duration

	// FileQueryString returns the query string attached to a file.
	FileQueryString func(p string) string
}

// StaticMetadata returns callbacks that give every entry the same values.
func StaticMetadata(dirPerm, filePerm fs.FileMode, revalidation time.Duration, query string) Metadata {
	return Metadata{
		DirPermission:    func(string) fs.FileMode { return dirPerm },
		DirRevalidation:  func(string) time.Duration { return revalidation },
		FilePermission:   func(string) fs.FileMode { return filePerm },
		FileRevalidation: func(string) time.Duration { return revalidation },
		FileQueryString:  func(string) string { return query },
	}
}

// Stats counts what happened to the paths offered to a Builder.
type Stats struct {
	// Added is the number of entries inserted through Add.
	Added int

	// Rejected is the number of paths refused by the policy.
	Rejected int

	// Duplicates is the number of paths offered more than once.
	Duplicates int

	// Synthesized is the number of ancestor directories inserted by
	// AddAncestorPrefixes.
	Synthesized int
}

// Builder turns inclusion events into hierarchy entries.
type Builder struct {
	// hierarchy receives the entries.
	hierarchy *Hierarchy

	// policy decides whether a path is included. Nil accepts everything.
	policy func(p string, isDir bool) bool

	// driver is recorded on every entry.
	driver string

	// meta fills in per-entry metadata.
	meta Metadata

	// stats counts outcomes of Add.
	stats Stats

	// logger is used to report duplicates.
	logger *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPolicy sets the inclusion policy consulted before every insertion.
func WithPolicy(policy func(p string, isDir bool) bool) BuilderOption {
	return func(b *Builder) {
		b.policy = policy
	}
}

// WithDriver sets the driver tag recorded on every entry.
func WithDriver(driver string) BuilderOption {
	return func(b *Builder) {
		b.driver = driver
	}
}

// WithMetadata sets the metadata callbacks.
func WithMetadata(meta Metadata) BuilderOption {
	return func(b *Builder) {
		b.meta = meta
	}
}

// WithBuilderLogger sets a custom logger.
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder with an empty hierarchy.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		hierarchy: New(),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		b.logger = slog.Default()
	}

	return b
}

// Hierarchy returns the hierarchy being built.
func (b *Builder) Hierarchy() *Hierarchy {
	return b.hierarchy
}

// Stats returns the counters collected so far.
func (b *Builder) Stats() Stats {
	return b.stats
}

// Driver returns the driver tag recorded on entries.
func (b *Builder) Driver() string {
	return b.driver
}

// Add applies the policy to p and inserts a new entry for it.
// A path that is already present is logged and rejected rather than
// overwritten. It returns true only if an entry was inserted.
func (b *Builder) Add(p string, isDir bool) bool {
	p = cleanPath(p)

	if b.policy != nil && !b.policy(p, isDir) {
		b.stats.Rejected++
		return false
	}

	if err := b.hierarchy.Insert(b.entry(p, isDir)); err != nil {
		b.stats.Duplicates++
		b.logger.Error("duplicate path rejected", "path", p, "dir", isDir, "error", err)
		return false
	}

	b.stats.Added++
	return true
}

// Include is Add with the shape of crawler.IncludeFunc.
func (b *Builder) Include(p string, isDir bool) bool {
	return b.Add(p, isDir)
}

// AddAncestorPrefixes inserts a directory entry for every prefix of root
// that is not yet a key, root itself included. For "/a/b" these are "/",
// "/a" and "/a/b". The policy is not consulted. It returns the number of
// entries inserted.
func (b *Builder) AddAncestorPrefixes(root string) int {
	added := 0
	for _, p := range prefixes(cleanPath(root)) {
		if b.hierarchy.Has(p) {
			continue
		}
		// Insert cannot fail: the key was just checked.
		_ = b.hierarchy.Insert(b.entry(p, true)) //nolint:errcheck
		added++
	}
	b.stats.Synthesized += added
	return added
}

// entry builds the record for p using the metadata callbacks.
func (b *Builder) entry(p string, isDir bool) model.Entry {
	if isDir {
		return &model.DirEntry{
			Path: p,
			EntryMeta: model.EntryMeta{
				Revalidation: durationOr(b.meta.DirRevalidation, p, DefaultRevalidation),
				Driver:       b.driver,
				Permission:   modeOr(b.meta.DirPermission, p, DefaultDirPermission),
			},
		}
	}

	query := ""
	if b.meta.FileQueryString != nil {
		query = b.meta.FileQueryString(p)
	}
	return &model.FileEntry{
		Path: p,
		EntryMeta: model.EntryMeta{
			Revalidation: durationOr(b.meta.FileRevalidation, p, DefaultRevalidation),
			Driver:       b.driver,
			Permission:   modeOr(b.meta.FilePermission, p, DefaultFilePermission),
		},
		QueryString: query,
	}
}

func durationOr(fn func(string) time.Duration, p string, def time.Duration) time.Duration {
	if fn == nil {
		return def
	}
	return fn(p)
}

func modeOr(fn func(string) fs.FileMode, p string, def fs.FileMode) fs.FileMode {
	if fn == nil {
		return def
	}
	return fn(p)
}

// cleanPath returns p as a clean absolute slash path.
func cleanPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// prefixes returns "/" followed by every ancestor of p and p itself,
// shortest first.
func prefixes(p string) []string {
	out := []string{RootPath}
	if p == RootPath {
		return out
	}
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return append(out, p)
}
