package config

import (
	"fmt"
	"io/fs"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Unclassified policy names used in the configuration file.
const (
	UnclassifiedFile = "file"
	UnclassifiedSkip = "skip"
)

// MetadataConfig holds the metadata advertised for every entry of a root.
// Empty fields fall back to the built-in defaults.
type MetadataConfig struct {
	// DirPermission is the octal permission of directories (e.g. "0755").
	DirPermission string `yaml:"dirPermission,omitempty"`

	// FilePermission is the octal permission of files (e.g. "0644").
	FilePermission string `yaml:"filePermission,omitempty"`

	// Revalidation is the cache lifetime of every entry (e.g. "24h").
	Revalidation string `yaml:"revalidation,omitempty"`

	// QueryString is appended to every file URL by manifest consumers.
	QueryString string `yaml:"queryString,omitempty"`

	// Driver overrides the driver tag derived from the backend.
	Driver string `yaml:"driver,omitempty"`
}

// Permissions parses the configured permissions, using the given defaults
// for empty fields.
func (m MetadataConfig) Permissions(defDir, defFile fs.FileMode) (dir, file fs.FileMode, err error) {
	if dir, err = parsePermission(m.DirPermission, defDir); err != nil {
		return 0, 0, err
	}
	if file, err = parsePermission(m.FilePermission, defFile); err != nil {
		return 0, 0, err
	}
	return dir, file, nil
}

// RevalidationInterval parses the configured revalidation interval, using
// def when it is empty.
func (m MetadataConfig) RevalidationInterval(def time.Duration) (time.Duration, error) {
	if m.Revalidation == "" {
		return def, nil
	}
	d, err := time.ParseDuration(m.Revalidation)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRevalidation, m.Revalidation)
	}
	return d, nil
}

func parsePermission(s string, def fs.FileMode) (fs.FileMode, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil || n > 0o777 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPermission, s)
	}
	return fs.FileMode(n), nil
}

// RootConfig holds per-root configuration.
// This allows customizing crawl behavior for each dataset.
type RootConfig struct {
	// Workers overrides the number of concurrent sessions.
	Workers int `yaml:"workers,omitempty"`

	// MaxRetries overrides the number of attempts per backend call.
	MaxRetries int `yaml:"maxRetries,omitempty"`

	// AllowPartialFailure overrides the partial failure policy when set.
	AllowPartialFailure *bool `yaml:"allowPartialFailure,omitempty"`

	// Unclassified is "file" (default) or "skip".
	Unclassified string `yaml:"unclassified,omitempty"`

	// Include holds glob patterns a file must match to be recorded.
	Include []string `yaml:"include,omitempty"`

	// Exclude holds glob patterns that remove files and whole subtrees.
	Exclude []string `yaml:"exclude,omitempty"`

	// Headers are extra HTTP headers for directory index backends.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Metadata configures the metadata recorded on entries.
	Metadata MetadataConfig `yaml:"metadata,omitempty"`
}

// PartialFailureAllowed reports the effective partial failure policy.
func (rc RootConfig) PartialFailureAllowed() bool {
	return rc.AllowPartialFailure != nil && *rc.AllowPartialFailure
}

// Validate checks the values that are parsed later.
func (rc RootConfig) Validate() error {
	switch rc.Unclassified {
	case "", UnclassifiedFile, UnclassifiedSkip:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidUnclassified, rc.Unclassified)
	}
	if _, _, err := rc.Metadata.Permissions(0, 0); err != nil {
		return err
	}
	if _, err := rc.Metadata.RevalidationInterval(0); err != nil {
		return err
	}
	return nil
}

// File represents the structure of the .treecrawl configuration file.
type File struct {
	// Roots maps crawl targets (as given on the command line) to their
	// configuration.
	Roots map[string]RootConfig `yaml:"roots,omitempty"`

	// Defaults is applied to all roots unless overridden per root.
	Defaults RootConfig `yaml:"defaults,omitempty"`
}

// Validate checks the defaults and every root entry.
func (cf *File) Validate() error {
	if err := cf.Defaults.Validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for root, rc := range cf.Roots {
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("root %s: %w", root, err)
		}
	}
	return nil
}

// lookup finds the entry for root, ignoring a trailing slash.
func (cf *File) lookup(root string) (RootConfig, bool) {
	if rc, ok := cf.Roots[root]; ok {
		return rc, true
	}
	trimmed := strings.TrimRight(root, "/")
	for key, rc := range cf.Roots {
		if strings.TrimRight(key, "/") == trimmed {
			return rc, true
		}
	}
	return RootConfig{}, false
}

// GetRootConfig returns the configuration for root merged over the defaults.
func (cf *File) GetRootConfig(root string) RootConfig {
	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	rc, ok := cf.lookup(root)
	if !ok {
		return result
	}

	if rc.Workers != 0 {
		result.Workers = rc.Workers
	}
	if rc.MaxRetries != 0 {
		result.MaxRetries = rc.MaxRetries
	}
	if rc.AllowPartialFailure != nil {
		result.AllowPartialFailure = rc.AllowPartialFailure
	}
	if rc.Unclassified != "" {
		result.Unclassified = rc.Unclassified
	}
	if len(rc.Include) > 0 {
		result.Include = rc.Include
	}
	if len(rc.Exclude) > 0 {
		result.Exclude = rc.Exclude
	}
	if len(rc.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, rc.Headers)
	}
	result.Metadata = mergeMetadata(result.Metadata, rc.Metadata)

	return result
}

func mergeMetadata(base, over MetadataConfig) MetadataConfig {
	if over.DirPermission != "" {
		base.DirPermission = over.DirPermission
	}
	if over.FilePermission != "" {
		base.FilePermission = over.FilePermission
	}
	if over.Revalidation != "" {
		base.Revalidation = over.Revalidation
	}
	if over.QueryString != "" {
		base.QueryString = over.QueryString
	}
	if over.Driver != "" {
		base.Driver = over.Driver
	}
	return base
}
