// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown for sharing crawl results
//
// Every writer can emit either the crawl summary alone (Write) or the
// summary followed by the manifest entries (WriteManifest).
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) so new output formats can be added
// without modifying the core data structures.
package report
