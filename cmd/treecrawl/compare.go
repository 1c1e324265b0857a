package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/treecrawl/internal/config"
	"github.com/nao1215/treecrawl/internal/database"
	"github.com/nao1215/treecrawl/internal/model"
	"github.com/spf13/cobra"
)

// noChangesMessage is shown when two runs produced the same hierarchy.
const noChangesMessage = "No changes"

// NewCompareCmd creates the compare command.
// This command compares crawl runs stored in the database.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [root]",
		Short: "Compare crawl results with historical data",
		Long: `Compare displays differences between the latest and an earlier crawl of a root.

This command retrieves stored crawl runs from the database and shows:
- Paths that appeared or disappeared since the earlier run
- Paths whose kind (file or directory) changed
- Paths whose recorded metadata changed
- Directories that started or stopped failing

The root must be given exactly as it was given to 'treecrawl crawl'.

Examples:
  # Compare the latest two crawls of a root
  treecrawl compare ftp://ftp.example.org/pub

  # List the crawl history of a root
  treecrawl compare --list ftp://ftp.example.org/pub

  # Compare with a specific run by ID
  treecrawl compare --with-run-id 5 ftp://ftp.example.org/pub

  # Compare with the first run since a date
  treecrawl compare --since 2026-01-01 ftp://ftp.example.org/pub

  # Output the comparison as JSON
  treecrawl compare --json ftp://ftp.example.org/pub

  # List every root in the database
  treecrawl compare --list-roots`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	// History listing flags
	cmd.Flags().BoolP("list", "l", false,
		"List crawl history for the specified root")
	cmd.Flags().BoolP("list-roots", "L", false,
		"List all crawled roots in the database")

	// Comparison target flags
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare with a specific run by ID (use --list to see available IDs)")
	cmd.Flags().StringP("since", "s", "",
		"Compare with the first run after this date (format: YYYY-MM-DD)")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output comparison result in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output comparison result in Markdown format")

	cmd.Flags().String("db-dir", "",
		"Database directory (default: XDG data directory)")

	return cmd
}

// compareOptions holds the parsed compare flags.
type compareOptions struct {
	root      string
	withRunID int64
	since     string
	json      bool
	markdown  bool
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	listRoots, err := cmd.Flags().GetBool("list-roots")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database so that a usage
	// error never creates an empty database file.
	var opts compareOptions
	if !listRoots {
		if len(args) == 0 {
			return errors.New("root is required (use --list-roots to see available roots)")
		}
		opts.root = args[0]
	}

	if opts.json, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if opts.markdown, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}
	if opts.withRunID, err = cmd.Flags().GetInt64("with-run-id"); err != nil {
		return err
	}
	if opts.since, err = cmd.Flags().GetString("since"); err != nil {
		return err
	}

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if listRoots {
		return listCrawledRoots(ctx, db, out)
	}

	listHistory, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	if listHistory {
		return listRunHistory(ctx, db, out, opts.root)
	}

	result, err := runComparison(ctx, db, opts)
	if err != nil {
		return err
	}

	switch {
	case opts.json:
		return outputComparisonJSON(out, result)
	case opts.markdown:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// listCrawledRoots lists all roots that have runs in the database.
func listCrawledRoots(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	roots, err := db.ListRoots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list roots: %w", err)
	}

	if len(roots) == 0 {
		fmt.Fprintln(out, "No crawled roots found in the database.")
		fmt.Fprintln(out, "\nUse 'treecrawl crawl <root>' to crawl a directory tree.")
		return nil
	}

	fmt.Fprintf(out, "Crawled roots (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	fmt.Fprintln(out, "\nUse 'treecrawl compare --list <root>' to see the crawl history of a root.")

	return nil
}

// listRunHistory lists all stored runs of root.
func listRunHistory(ctx context.Context, db *database.CrawlDB, out io.Writer, root string) error {
	runs, err := db.GetRunHistory(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to get run history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No crawl history found for %s\n", root)
		fmt.Fprintln(out, "\nUse 'treecrawl crawl' to crawl this root.")
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d runs):\n\n", root, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-8s  %-8s  %-8s  %-6s  %s\n",
		"ID", "Date", "Status", "Dirs", "Files", "Failed", "Fingerprint")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 80))

	for _, meta := range runs {
		status := "ok"
		if !meta.Success {
			status = "failed"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %-8s  %-8d  %-8d  %-6d  %s\n",
			meta.ID,
			meta.StartedAt.Local().Format("2006-01-02 15:04:05"),
			status,
			meta.DirCount,
			meta.FileCount,
			meta.FailedCount,
			shortFingerprint(meta.Fingerprint),
		)
	}

	fmt.Fprintln(out, "\nUse 'treecrawl compare <root>' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'treecrawl compare --with-run-id <id> <root>' to compare with a specific run.")

	return nil
}

// shortFingerprint returns the first 12 characters of a fingerprint.
func shortFingerprint(fp string) string {
	if fp == "" {
		return "N/A"
	}
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

// runSnapshot is a stored run with its entries and failures loaded.
type runSnapshot struct {
	id      int64
	report  *model.CrawlReport
	entries []model.Entry
	failed  []model.FailedPath
}

// loadSnapshot loads the entries and failures of a stored run.
func loadSnapshot(ctx context.Context, db *database.CrawlDB, id int64, report *model.CrawlReport) (*runSnapshot, error) {
	entries, err := db.GetRunEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	failed, err := db.GetRunFailures(ctx, id)
	if err != nil {
		return nil, err
	}
	return &runSnapshot{id: id, report: report, entries: entries, failed: failed}, nil
}

// runComparison selects the two runs to compare and diffs them.
// The latest run of the root is always the current one.
func runComparison(ctx context.Context, db *database.CrawlDB, opts compareOptions) (*ComparisonResult, error) {
	latest, err := db.GetLatestRuns(ctx, opts.root, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl history: %w", err)
	}
	if len(latest) == 0 {
		return nil, fmt.Errorf("no crawl history found for %s", opts.root)
	}
	if len(latest) < 2 && opts.withRunID == 0 && opts.since == "" {
		return nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(latest))
	}

	current := latest[0]
	var previousID int64

	switch {
	case opts.withRunID > 0:
		previousID = opts.withRunID
	case opts.since != "":
		previousID, err = firstRunSince(ctx, db, opts.root, opts.since)
		if err != nil {
			return nil, err
		}
	default:
		previousID = latest[1].ID
	}

	if previousID == current.ID {
		return nil, fmt.Errorf("run %d is the latest run of %s; at least 2 runs are required for comparison", previousID, opts.root)
	}

	previousReport, err := db.GetRunByID(ctx, previousID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run with ID %d: %w", previousID, err)
	}
	if previousReport == nil {
		return nil, fmt.Errorf("run with ID %d not found", previousID)
	}
	if previousReport.Root != opts.root {
		return nil, fmt.Errorf("run ID %d belongs to %s, not %s", previousID, previousReport.Root, opts.root)
	}

	prev, err := loadSnapshot(ctx, db, previousID, previousReport)
	if err != nil {
		return nil, err
	}
	cur, err := loadSnapshot(ctx, db, current.ID, current.Report)
	if err != nil {
		return nil, err
	}

	return compareRuns(prev, cur), nil
}

// firstRunSince returns the ID of the oldest run of root started at or
// after the given date.
func firstRunSince(ctx context.Context, db *database.CrawlDB, root, since string) (int64, error) {
	date, err := time.ParseInLocation("2006-01-02", since, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
	}

	history, err := db.GetRunHistory(ctx, root)
	if err != nil {
		return 0, fmt.Errorf("failed to get run history: %w", err)
	}

	// History is newest first, so walk it backwards.
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].StartedAt.Before(date) {
			return history[i].ID, nil
		}
	}
	return 0, fmt.Errorf("no runs found since %s", since)
}

// ComparisonResult holds the result of comparing two crawl runs.
type ComparisonResult struct {
	// Root is the crawled root.
	Root string `json:"root"`

	// PreviousRun summarizes the earlier run.
	PreviousRun RunSummary `json:"previous_run"`

	// CurrentRun summarizes the latest run.
	CurrentRun RunSummary `json:"current_run"`

	// Added lists paths present only in the current run.
	Added []string `json:"added,omitempty"`

	// Removed lists paths present only in the previous run.
	Removed []string `json:"removed,omitempty"`

	// KindChanged lists paths that switched between file and directory.
	KindChanged []PathChange `json:"kind_changed,omitempty"`

	// MetadataChanged lists paths whose permission, revalidation, driver
	// or query string changed.
	MetadataChanged []PathChange `json:"metadata_changed,omitempty"`

	// NewlyFailed lists directories that failed only in the current run.
	NewlyFailed []string `json:"newly_failed,omitempty"`

	// Recovered lists directories that failed only in the previous run.
	Recovered []string `json:"recovered,omitempty"`

	// UnchangedCount is the number of paths identical in both runs.
	UnchangedCount int `json:"unchanged_count"`

	// FingerprintChanged reports whether the hierarchy digests differ.
	FingerprintChanged bool `json:"fingerprint_changed"`

	// FailedDelta is the change in the number of failed directories.
	FailedDelta int `json:"failed_delta"`
}

// RunSummary contains metadata about a run for comparison display.
type RunSummary struct {
	ID          int64     `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	Success     bool      `json:"success"`
	FileCount   int       `json:"file_count"`
	DirCount    int       `json:"dir_count"`
	FailedCount int       `json:"failed_count"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

// PathChange describes how one path differs between two runs.
type PathChange struct {
	Path     string `json:"path"`
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// HasChanges reports whether the two runs differ in any path.
func (c *ComparisonResult) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 ||
		len(c.KindChanged) > 0 || len(c.MetadataChanged) > 0
}

// summarize builds the RunSummary of a snapshot.
func summarize(s *runSnapshot) RunSummary {
	return RunSummary{
		ID:          s.id,
		StartedAt:   s.report.StartedAt,
		Success:     s.report.Success,
		FileCount:   s.report.FileCount,
		DirCount:    s.report.DirCount,
		FailedCount: len(s.failed),
		Fingerprint: s.report.Fingerprint,
	}
}

// compareRuns diffs two snapshots path by path.
func compareRuns(previous, current *runSnapshot) *ComparisonResult {
	result := &ComparisonResult{
		Root:        current.report.Root,
		PreviousRun: summarize(previous),
		CurrentRun:  summarize(current),
	}
	result.FingerprintChanged = result.PreviousRun.Fingerprint != result.CurrentRun.Fingerprint
	result.FailedDelta = result.CurrentRun.FailedCount - result.PreviousRun.FailedCount

	prevEntries := make(map[string]model.Entry, len(previous.entries))
	for _, e := range previous.entries {
		prevEntries[e.EntryPath()] = e
	}

	for _, e := range current.entries {
		p := e.EntryPath()
		old, ok := prevEntries[p]
		if !ok {
			result.Added = append(result.Added, p)
			continue
		}
		delete(prevEntries, p)

		switch {
		case old.Kind() != e.Kind():
			result.KindChanged = append(result.KindChanged, PathChange{
				Path:     p,
				Previous: old.Kind().String(),
				Current:  e.Kind().String(),
			})
		case describeEntry(old) != describeEntry(e):
			result.MetadataChanged = append(result.MetadataChanged, PathChange{
				Path:     p,
				Previous: describeEntry(old),
				Current:  describeEntry(e),
			})
		default:
			result.UnchangedCount++
		}
	}
	for p := range prevEntries {
		result.Removed = append(result.Removed, p)
	}

	result.NewlyFailed, result.Recovered = diffFailures(previous.failed, current.failed)

	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sortChanges(result.KindChanged)
	sortChanges(result.MetadataChanged)

	return result
}

// describeEntry renders the metadata of an entry for display and comparison.
func describeEntry(e model.Entry) string {
	meta := e.Meta()
	s := fmt.Sprintf("%04o %s %s", uint32(meta.Permission.Perm()), meta.Revalidation, meta.Driver)
	if f, ok := e.(*model.FileEntry); ok && f.QueryString != "" {
		s += " ?" + f.QueryString
	}
	return s
}

// diffFailures returns the failed paths that are new in current and those
// that no longer fail.
func diffFailures(previous, current []model.FailedPath) (added, resolved []string) {
	prev := make(map[string]bool, len(previous))
	for _, f := range previous {
		prev[f.Path] = true
	}
	for _, f := range current {
		if prev[f.Path] {
			delete(prev, f.Path)
			continue
		}
		added = append(added, f.Path)
	}
	for p := range prev {
		resolved = append(resolved, p)
	}
	sort.Strings(added)
	sort.Strings(resolved)
	return added, resolved
}

func sortChanges(changes []PathChange) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
}

// outputComparisonJSON outputs the comparison result in JSON format.
func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// outputComparisonMarkdown outputs the comparison result in Markdown format.
func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)

	md.H1("Crawl Comparison: " + result.Root)
	md.PlainText("")

	if result.HasChanges() {
		md.Importantf("%d added, %d removed, %d changed.",
			len(result.Added), len(result.Removed), len(result.KindChanged)+len(result.MetadataChanged))
	} else {
		md.Tip(noChangesMessage + " between the two runs.")
	}
	md.PlainText("")

	prev, cur := result.PreviousRun, result.CurrentRun
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run ID", strconv.FormatInt(prev.ID, 10), strconv.FormatInt(cur.ID, 10), ""},
			{"Date", prev.StartedAt.Local().Format("2006-01-02 15:04"), cur.StartedAt.Local().Format("2006-01-02 15:04"), ""},
			{"Directories", strconv.Itoa(prev.DirCount), strconv.Itoa(cur.DirCount), formatDelta(cur.DirCount - prev.DirCount)},
			{"Files", strconv.Itoa(prev.FileCount), strconv.Itoa(cur.FileCount), formatDelta(cur.FileCount - prev.FileCount)},
			{"Failed", strconv.Itoa(prev.FailedCount), strconv.Itoa(cur.FailedCount), formatDelta(result.FailedDelta)},
			{"Fingerprint", "`" + shortFingerprint(prev.Fingerprint) + "`", "`" + shortFingerprint(cur.Fingerprint) + "`", formatFingerprintChange(result.FingerprintChanged)},
		},
	})
	md.PlainText("")

	if len(result.Added) > 0 {
		md.H2(fmt.Sprintf("Added Paths (%d)", len(result.Added)))
		md.PlainText("")
		md.BulletList(codeList(result.Added)...)
		md.PlainText("")
	}
	if len(result.Removed) > 0 {
		md.H2(fmt.Sprintf("Removed Paths (%d)", len(result.Removed)))
		md.PlainText("")
		md.BulletList(codeList(result.Removed)...)
		md.PlainText("")
	}
	if changes := append(append([]PathChange(nil), result.KindChanged...), result.MetadataChanged...); len(changes) > 0 {
		md.H2(fmt.Sprintf("Changed Paths (%d)", len(changes)))
		md.PlainText("")
		rows := make([][]string, 0, len(changes))
		for _, c := range changes {
			rows = append(rows, []string{"`" + c.Path + "`", c.Previous, c.Current})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Path", "Previous", "Current"},
			Rows:   rows,
		})
		md.PlainText("")
	}
	if len(result.NewlyFailed) > 0 || len(result.Recovered) > 0 {
		md.H2("Failed Directories")
		md.PlainText("")
		items := make([]string, 0, len(result.NewlyFailed)+len(result.Recovered))
		for _, p := range result.NewlyFailed {
			items = append(items, "**new** `"+p+"`")
		}
		for _, p := range result.Recovered {
			items = append(items, "~~`"+p+"`~~ recovered")
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if result.UnchangedCount > 0 {
		md.HorizontalRule()
		md.PlainText("")
		md.PlainTextf("*%d paths unchanged*", result.UnchangedCount)
	}

	return md.Build()
}

// outputComparisonText outputs the comparison result in human-readable text format.
func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	fmt.Fprintf(out, "Crawl Comparison: %s\n", result.Root)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	prev, cur := result.PreviousRun, result.CurrentRun
	fmt.Fprintf(out, "\nPrevious run: #%d %s\n", prev.ID, prev.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Current run:  #%d %s\n", cur.ID, cur.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Fingerprint:  %s\n", formatFingerprintChange(result.FingerprintChanged))

	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  %-12s  %-10s  %-10s  %-10s\n", "", "Previous", "Current", "Change")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 48))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Directories",
		prev.DirCount, cur.DirCount, formatDelta(cur.DirCount-prev.DirCount))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Files",
		prev.FileCount, cur.FileCount, formatDelta(cur.FileCount-prev.FileCount))
	fmt.Fprintf(out, "  %-12s  %-10d  %-10d  %-10s\n", "Failed",
		prev.FailedCount, cur.FailedCount, formatDelta(result.FailedDelta))

	if !result.HasChanges() {
		fmt.Fprintf(out, "\n%s\n", noChangesMessage)
	}

	if len(result.Added) > 0 {
		fmt.Fprintf(out, "\nAdded (%d):\n", len(result.Added))
		for _, p := range result.Added {
			fmt.Fprintf(out, "  [+] %s\n", p)
		}
	}
	if len(result.Removed) > 0 {
		fmt.Fprintf(out, "\nRemoved (%d):\n", len(result.Removed))
		for _, p := range result.Removed {
			fmt.Fprintf(out, "  [-] %s\n", p)
		}
	}
	if len(result.KindChanged) > 0 {
		fmt.Fprintf(out, "\nKind changed (%d):\n", len(result.KindChanged))
		for _, c := range result.KindChanged {
			fmt.Fprintf(out, "  [~] %s: %s -> %s\n", c.Path, c.Previous, c.Current)
		}
	}
	if len(result.MetadataChanged) > 0 {
		fmt.Fprintf(out, "\nMetadata changed (%d):\n", len(result.MetadataChanged))
		for _, c := range result.MetadataChanged {
			fmt.Fprintf(out, "  [~] %s: %s -> %s\n", c.Path, c.Previous, c.Current)
		}
	}
	if len(result.NewlyFailed) > 0 {
		fmt.Fprintf(out, "\nNewly failed (%d):\n", len(result.NewlyFailed))
		for _, p := range result.NewlyFailed {
			fmt.Fprintf(out, "  [!] %s\n", p)
		}
	}
	if len(result.Recovered) > 0 {
		fmt.Fprintf(out, "\nRecovered (%d):\n", len(result.Recovered))
		for _, p := range result.Recovered {
			fmt.Fprintf(out, "  [*] %s\n", p)
		}
	}

	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d paths\n", result.UnchangedCount)
	}

	return nil
}

// formatFingerprintChange describes whether the hierarchy digest changed.
func formatFingerprintChange(changed bool) string {
	if changed {
		return "CHANGED"
	}
	return "UNCHANGED"
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

// codeList wraps each path in backticks.
func codeList(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = "`" + s + "`"
	}
	return out
}
