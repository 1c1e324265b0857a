package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/treecrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so that output can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with nothing to report are shown.
	showEmpty bool

	// verbose adds failure reasons and timing details.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the crawl summary in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder
	w.writeSummary(&sb, report)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

// WriteManifest outputs the summary followed by one line per entry:
// kind, permission, revalidation and path.
func (w *SimpleWriter) WriteManifest(report *model.CrawlReport, entries []model.Entry) (int, error) {
	var sb strings.Builder
	w.writeSummary(&sb, report)
	w.writeEntries(&sb, entries)
	w.writeFooter(&sb)
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.CrawlReport) {
	w.writeHeader(sb, report)
	w.writeStatistics(sb, report)
	w.writeProblems(sb, report)
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         TREECRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Root:           %s\n", report.Root)
	fmt.Fprintf(sb, "Crawl Path:     %s\n", report.RootPath)
	fmt.Fprintf(sb, "Driver:         %s\n", report.Driver)
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if w.verbose {
		fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
		fmt.Fprintf(sb, "Workers:        %d\n", report.Workers)
		fmt.Fprintf(sb, "Steps:          %s\n", strings.Join(report.PerformedSteps, ", "))
	}

	status := Status(report)
	if report.ErrorMessage != "" {
		status += " - " + report.ErrorMessage
	}
	fmt.Fprintf(sb, "Status:         %s\n", status)
	sb.WriteString("\n")
}

// writeStatistics writes the counters section.
func (w *SimpleWriter) writeStatistics(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("STATISTICS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "  DIRECTORIES:  %d\n", report.DirCount)
	fmt.Fprintf(sb, "  FILES:        %d\n", report.FileCount)
	fmt.Fprintf(sb, "  LISTINGS:     %d\n", report.Jobs)
	fmt.Fprintf(sb, "  REJECTED:     %d\n", report.Rejected)
	if report.Duplicates > 0 || w.showEmpty {
		fmt.Fprintf(sb, "  DUPLICATES:   %d\n", report.Duplicates)
	}
	if report.Fingerprint != "" {
		fmt.Fprintf(sb, "  FINGERPRINT:  %s\n", report.Fingerprint)
	}
	sb.WriteString("\n")
}

// writeProblems writes failed, unclassified and abandoned paths.
func (w *SimpleWriter) writeProblems(sb *strings.Builder, report *model.CrawlReport) {
	if !report.HasProblems() && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("PROBLEMS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if !report.HasProblems() {
		sb.WriteString("  No problems\n\n")
		return
	}

	if len(report.Failed) > 0 {
		fmt.Fprintf(sb, "[!] Failed directories (%d)\n", len(report.Failed))
		for _, f := range report.Failed {
			fmt.Fprintf(sb, "  * %s\n", f.Path)
			if w.verbose && f.Reason != "" {
				fmt.Fprintf(sb, "    Reason: %s\n", f.Reason)
			}
		}
		sb.WriteString("\n")
	}
	if len(report.Unclassified) > 0 {
		fmt.Fprintf(sb, "[?] Unclassified children (%d)\n", len(report.Unclassified))
		for _, p := range report.Unclassified {
			fmt.Fprintf(sb, "  * %s\n", p)
		}
		sb.WriteString("\n")
	}
	if len(report.Abandoned) > 0 {
		fmt.Fprintf(sb, "[-] Not crawled (%d)\n", len(report.Abandoned))
		for _, p := range report.Abandoned {
			fmt.Fprintf(sb, "  * %s\n", p)
		}
		sb.WriteString("\n")
	}
}

// writeEntries writes the manifest, one entry per line.
func (w *SimpleWriter) writeEntries(sb *strings.Builder, entries []model.Entry) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("MANIFEST\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, e := range sortedEntries(entries) {
		meta := e.Meta()
		kind := "f"
		if e.Kind() == model.KindDir {
			kind = "d"
		}
		fmt.Fprintf(sb, "  %s %04o %-8s %s\n", kind, uint32(meta.Permission.Perm()), meta.Revalidation, e.EntryPath())
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
