package report

import (
	"io"
	"sort"

	"github.com/nao1215/treecrawl/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl results in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files or stdout with the
// same API.
type Writer interface {
	// Write outputs the crawl summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CrawlReport) (int, error)

	// WriteManifest outputs the summary followed by the manifest entries.
	// Entries are written in path order regardless of the input order.
	WriteManifest(report *model.CrawlReport, entries []model.Entry) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteManifest outputs the report and entries to all configured Writers.
func (m *MultiWriter) WriteManifest(report *model.CrawlReport, entries []model.Entry) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteManifest(report, entries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// sortedEntries returns a copy of entries ordered by path.
func sortedEntries(entries []model.Entry) []model.Entry {
	out := make([]model.Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool {
		return out[i].EntryPath() < out[j].EntryPath()
	})
	return out
}

// Status is a one-word summary of how a crawl ended.
func Status(report *model.CrawlReport) string {
	switch {
	case report.Cancelled:
		return "CANCELLED"
	case report.Success && len(report.Failed) > 0:
		return "PARTIAL"
	case report.Success:
		return "COMPLETE"
	default:
		return "FAILED"
	}
}
