// Package main provides the entry point for the treecrawl CLI.
//
// treecrawl walks a directory tree on a local filesystem, an FTP server or
// an HTTP directory index with a pool of concurrent workers and records
// the result as a manifest of file and directory entries.
//
// Usage:
//
//	treecrawl crawl <root>...
//	treecrawl compare <root>
//
// See --help for all available options.
package main

// main is the entry point for treecrawl.
func main() {
	Execute()
}
