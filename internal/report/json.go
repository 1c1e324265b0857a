package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/treecrawl/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is written into manifest output when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the treecrawl version in manifest output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the crawl report in JSON format.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	return w.writeJSON(report)
}

// Manifest is the JSON document written by WriteManifest.
//
// Design decision: We wrap the report rather than adding entries to
// CrawlReport, because the report is also what the database stores and
// entries are stored separately there.
type Manifest struct {
	// Version is the treecrawl version that generated this manifest.
	Version string `json:"version,omitempty"`

	// Report is the crawl summary.
	Report *model.CrawlReport `json:"report"`

	// Entries are the manifest records in path order, in the wire form
	// produced by model.MarshalEntry.
	Entries []json.RawMessage `json:"entries"`
}

// NewManifest builds the manifest document for report and entries.
func NewManifest(report *model.CrawlReport, entries []model.Entry, version string) (*Manifest, error) {
	m := &Manifest{
		Version: version,
		Report:  report,
		Entries: make([]json.RawMessage, 0, len(entries)),
	}
	for _, e := range sortedEntries(entries) {
		data, err := model.MarshalEntry(e)
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, data)
	}
	return m, nil
}

// WriteManifest outputs the report and its entries as one JSON document.
func (w *JSONWriter) WriteManifest(report *model.CrawlReport, entries []model.Entry) (int, error) {
	m, err := NewManifest(report, entries, w.version)
	if err != nil {
		return 0, err
	}
	return w.writeJSON(m)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Trailing newline for terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
