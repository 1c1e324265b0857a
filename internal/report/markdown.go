package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/treecrawl/internal/model"
)

// maxProblemRows caps each problem table; the full lists are in the JSON report.
const maxProblemRows = 50

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the crawl summary in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeSummary(md, report)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteManifest outputs the summary followed by an entry table.
func (w *MarkdownWriter) WriteManifest(report *model.CrawlReport, entries []model.Entry) (int, error) {
	md := markdown.NewMarkdown(w.output)
	w.writeSummary(md, report)
	w.writeEntries(md, entries)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport) {
	w.writeHeader(md, report)
	w.writeStatistics(md, report)
	w.writeProblems(md, report)
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Treecrawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root", "`" + report.Root + "`"},
			{"Crawl Path", "`" + report.RootPath + "`"},
			{"Driver", report.Driver},
			{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", report.Duration().Round(time.Millisecond).String()},
			{"Workers", strconv.Itoa(report.Workers)},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.CrawlReport) string {
	switch Status(report) {
	case "CANCELLED":
		return "⚠️ Cancelled (partial results)"
	case "PARTIAL":
		return "⚠️ Complete with failed directories"
	case "COMPLETE":
		return "✅ Complete"
	default:
		if report.ErrorMessage != "" {
			return "❌ Failed - " + report.ErrorMessage
		}
		return "❌ Failed"
	}
}

// writeStatistics writes the counters table, a chart and an alert.
func (w *MarkdownWriter) writeStatistics(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Statistics")
	md.PlainText("")

	rows := [][]string{
		{"📁 Directories", strconv.Itoa(report.DirCount)},
		{"📄 Files", strconv.Itoa(report.FileCount)},
		{"Listings", strconv.Itoa(report.Jobs)},
		{"Rejected by filter", strconv.Itoa(report.Rejected)},
		{"Duplicates", strconv.Itoa(report.Duplicates)},
		{"**Total entries**", "**" + strconv.Itoa(report.EntryCount()) + "**"},
	}
	if report.Fingerprint != "" {
		rows = append(rows, []string{"Fingerprint", "`" + report.Fingerprint + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if report.EntryCount() > 0 {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of the entry kinds.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *model.CrawlReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Entries by Kind"),
		piechart.WithShowData(true),
	)

	if report.DirCount > 0 {
		chart.LabelAndIntValue("Directories", uint64(report.DirCount))
	}
	if report.FileCount > 0 {
		chart.LabelAndIntValue("Files", uint64(report.FileCount))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert that matches the crawl outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	switch {
	case report.Cancelled:
		md.Warningf("The crawl was cancelled. %d queued director(ies) were not listed.", len(report.Abandoned))
	case !report.Success:
		md.Cautionf("The crawl failed. %d director(ies) could not be listed.", len(report.Failed))
	case len(report.Failed) > 0:
		md.Importantf("%d director(ies) could not be listed; partial failure was allowed.", len(report.Failed))
	case len(report.Unclassified) > 0:
		md.Note(fmt.Sprintf("%d children could not be classified.", len(report.Unclassified)))
	default:
		md.Tip("Every directory was listed.")
	}
	md.PlainText("")
}

// writeProblems writes the failed, unclassified and abandoned paths.
func (w *MarkdownWriter) writeProblems(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Problems")
	md.PlainText("")

	if !report.HasProblems() {
		md.PlainText("No problems detected.")
		md.PlainText("")
		return
	}

	if len(report.Failed) > 0 {
		md.PlainText("### Failed Directories")
		md.PlainText("")
		rows := make([][]string, 0, len(report.Failed))
		for i, f := range report.Failed {
			if i == maxProblemRows {
				break
			}
			reason := f.Reason
			if reason == "" {
				reason = "-"
			}
			rows = append(rows, []string{"`" + f.Path + "`", truncateString(reason, 80)})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Path", "Reason"},
			Rows:   rows,
		})
		w.writeTruncationNote(md, len(report.Failed))
		md.PlainText("")
	}

	if len(report.Unclassified) > 0 {
		md.PlainText("### Unclassified Children")
		md.PlainText("")
		md.BulletList(codeList(limit(report.Unclassified))...)
		w.writeTruncationNote(md, len(report.Unclassified))
		md.PlainText("")
	}

	if len(report.Abandoned) > 0 {
		md.PlainText("### Not Crawled")
		md.PlainText("")
		md.BulletList(codeList(limit(report.Abandoned))...)
		w.writeTruncationNote(md, len(report.Abandoned))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeTruncationNote(md *markdown.Markdown, total int) {
	if total > maxProblemRows {
		md.PlainTextf("*%d more not shown.*", total-maxProblemRows)
	}
}

// writeEntries writes the manifest table.
func (w *MarkdownWriter) writeEntries(md *markdown.Markdown, entries []model.Entry) {
	md.H2("Manifest")
	md.PlainText("")

	if len(entries) == 0 {
		md.PlainText("The hierarchy is empty.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range sortedEntries(entries) {
		meta := e.Meta()
		query := "-"
		if f, ok := e.(*model.FileEntry); ok && f.QueryString != "" {
			query = f.QueryString
		}
		rows = append(rows, []string{
			"`" + e.EntryPath() + "`",
			e.Kind().String(),
			fmt.Sprintf("%04o", uint32(meta.Permission.Perm())),
			meta.Revalidation.String(),
			meta.Driver,
			query,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Path", "Kind", "Permission", "Revalidation", "Driver", "Query"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by treecrawl*")
}

func limit(items []string) []string {
	if len(items) > maxProblemRows {
		return items[:maxProblemRows]
	}
	return items
}

// codeList wraps each path in backticks.
func codeList(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = "`" + s + "`"
	}
	return out
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
