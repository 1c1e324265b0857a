package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/treecrawl/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "treecrawl.db"

// ErrNilReport is returned by SaveRun when no report is given.
var ErrNilReport = errors.New("nil crawl report")

// CrawlDB provides SQLite-based storage for crawl runs.
// It manages connection pooling and provides methods for storing and
// querying runs.
//
// Design decision: We use a single database file for all roots rather
// than separate files per root. This keeps history queries simple and
// makes backup a single file copy.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite takes the open mode and pragmas in the DSN.
	// mode=rw refuses to create a missing file, mode=rwc allows it.
	// The busy timeout lets a compare read while a crawl is saving.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. Batch crawls save runs from several
	// goroutines, so writes are serialized on one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl of one root
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root TEXT NOT NULL,
		driver TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		success INTEGER NOT NULL,
		file_count INTEGER NOT NULL,
		dir_count INTEGER NOT NULL,
		fingerprint TEXT,
		report_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_root ON crawl_runs(root);

	-- Manifest entries of each run
	CREATE TABLE IF NOT EXISTS entries (
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		permission INTEGER NOT NULL,
		revalidation INTEGER NOT NULL,
		driver TEXT,
		query_string TEXT,
		PRIMARY KEY (run_id, path)
	);

	-- Directories a run could not list
	CREATE TABLE IF NOT EXISTS failed_paths (
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_failed_run ON failed_paths(run_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a finished crawl with its entries in one transaction
// and returns the run ID.
func (cdb *CrawlDB) SaveRun(ctx context.Context, report *model.CrawlReport, entries []model.Entry) (int64, error) {
	if report == nil {
		return 0, ErrNilReport
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // Rollback after Commit is a no-op

	result, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (root, driver, started_at, finished_at, success, file_count, dir_count, fingerprint, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Root,
		report.Driver,
		formatTimestamp(report.StartedAt),
		formatTimestamp(report.FinishedAt),
		report.Success,
		report.FileCount,
		report.DirCount,
		report.Fingerprint,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert crawl run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	if err := insertEntries(ctx, tx, runID, entries); err != nil {
		return 0, err
	}

	for _, f := range report.Failed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO failed_paths (run_id, path, reason) VALUES (?, ?, ?)`,
			runID, f.Path, f.Reason,
		); err != nil {
			return 0, fmt.Errorf("failed to insert failed path %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl run: %w", err)
	}
	return runID, nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, runID int64, entries []model.Entry) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO entries (run_id, path, kind, permission, revalidation, driver, query_string)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		meta := e.Meta()
		var query string
		if f, ok := e.(*model.FileEntry); ok {
			query = f.QueryString
		}
		if _, err := stmt.ExecContext(ctx,
			runID,
			e.EntryPath(),
			e.Kind().String(),
			int64(meta.Permission.Perm()),
			int64(meta.Revalidation),
			meta.Driver,
			query,
		); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.EntryPath(), err)
		}
	}
	return nil
}

// StoredRun is a crawl report loaded back from the database.
type StoredRun struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// Report is the report as it was saved.
	Report *model.CrawlReport
}

// GetLatestRuns returns up to n runs of root, newest first.
func (cdb *CrawlDB) GetLatestRuns(ctx context.Context, root string, n int) ([]StoredRun, error) {
	query := `
	SELECT id, report_json FROM crawl_runs
	WHERE root = ?
	ORDER BY id DESC
	LIMIT ?
	`

	rows, err := cdb.db.QueryContext(ctx, query, root, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest runs: %w", err)
	}
	defer rows.Close()

	var runs []StoredRun
	for rows.Next() {
		var id int64
		var reportJSON string
		if err := rows.Scan(&id, &reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		var report model.CrawlReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			continue // Skip malformed reports
		}
		runs = append(runs, StoredRun{ID: id, Report: &report})
	}

	return runs, rows.Err()
}

// GetRunByID retrieves a run by its database ID.
// It returns nil without an error when the run does not exist.
func (cdb *CrawlDB) GetRunByID(ctx context.Context, id int64) (*model.CrawlReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM crawl_runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// GetRunEntries returns the entries of a run sorted by path.
func (cdb *CrawlDB) GetRunEntries(ctx context.Context, runID int64) ([]model.Entry, error) {
	query := `
	SELECT path, kind, permission, revalidation, driver, query_string
	FROM entries
	WHERE run_id = ?
	ORDER BY path
	`

	rows, err := cdb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run entries: %w", err)
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		var (
			path, kindName  string
			perm, reval     int64
			driver, queryNS sql.NullString
		)
		if err := rows.Scan(&path, &kindName, &perm, &reval, &driver, &queryNS); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		kind, err := model.ParseEntryKind(kindName)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", path, err)
		}

		meta := model.EntryMeta{
			Revalidation: time.Duration(reval),
			Driver:       driver.String,
			Permission:   fs.FileMode(perm),
		}
		if kind == model.KindDir {
			entries = append(entries, &model.DirEntry{Path: path, EntryMeta: meta})
		} else {
			entries = append(entries, &model.FileEntry{Path: path, EntryMeta: meta, QueryString: queryNS.String})
		}
	}

	return entries, rows.Err()
}

// GetRunFailures returns the directories a run could not list, sorted by path.
func (cdb *CrawlDB) GetRunFailures(ctx context.Context, runID int64) ([]model.FailedPath, error) {
	rows, err := cdb.db.QueryContext(ctx,
		`SELECT path, reason FROM failed_paths WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run failures: %w", err)
	}
	defer rows.Close()

	var failed []model.FailedPath
	for rows.Next() {
		var f model.FailedPath
		var reason sql.NullString
		if err := rows.Scan(&f.Path, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan failed path: %w", err)
		}
		f.Reason = reason.String
		failed = append(failed, f)
	}

	return failed, rows.Err()
}

// ListRoots returns every root that has at least one stored run.
func (cdb *CrawlDB) ListRoots(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT root FROM crawl_runs ORDER BY root`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		roots = append(roots, root)
	}

	return roots, rows.Err()
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying run history without loading the full report.
type RunMetadata struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// Root is the crawled root.
	Root string

	// StartedAt is when the crawl began.
	StartedAt time.Time

	// Success is the overall outcome of the run.
	Success bool

	// FileCount and DirCount are the hierarchy sizes.
	FileCount int
	DirCount  int

	// FailedCount is the number of directories that could not be listed.
	FailedCount int

	// Fingerprint is the hierarchy digest.
	Fingerprint string
}

// GetRunHistory retrieves run metadata for root, newest first.
// This is more efficient than GetLatestRuns when only metadata is needed.
func (cdb *CrawlDB) GetRunHistory(ctx context.Context, root string) ([]RunMetadata, error) {
	query := `
	SELECT r.id, r.root, r.started_at, r.success, r.file_count, r.dir_count, r.fingerprint,
		(SELECT COUNT(*) FROM failed_paths f WHERE f.run_id = r.id)
	FROM crawl_runs r
	WHERE r.root = ?
	ORDER BY r.id DESC
	`

	rows, err := cdb.db.QueryContext(ctx, query, root)
	if err != nil {
		return nil, fmt.Errorf("failed to get run history: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var startedAt string
		var fingerprint sql.NullString

		if err := rows.Scan(&meta.ID, &meta.Root, &startedAt, &meta.Success,
			&meta.FileCount, &meta.DirCount, &fingerprint, &meta.FailedCount); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.StartedAt = parseTimestamp(startedAt)
		meta.Fingerprint = fingerprint.String
		results = append(results, meta)
	}

	return results, rows.Err()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // Written by formatTimestamp
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
