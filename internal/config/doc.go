// Package config provides configuration structures and utilities for treecrawl.
// It defines the crawl settings shared by all roots, the per-root overrides
// read from the .treecrawl YAML file, and report output preferences.
package config
