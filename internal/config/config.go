package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultWorkers is the number of concurrent backend sessions per root.
	// FTP servers commonly limit connections per client to 4-10, so the
	// default stays at the low end.
	DefaultWorkers = 4

	// DefaultMaxRetries is the number of attempts for each backend call.
	DefaultMaxRetries = 3

	// DefaultBackoff is the fixed pause between two attempts.
	DefaultBackoff = 1 * time.Second

	// DefaultTimeout bounds a single backend call (one listing or one
	// directory check), not the whole crawl.
	DefaultTimeout = 30 * time.Second

	// DefaultProgressInterval is how often crawl progress is logged.
	DefaultProgressInterval = 10 * time.Second

	// DefaultBatchSize is the number of roots crawled concurrently.
	// Each root already runs Workers sessions, so this multiplies the load
	// on shared servers.
	DefaultBatchSize = 2

	// AppName is the application name used for XDG directory paths.
	AppName = "treecrawl"
)

// Config holds all configuration options for treecrawl.
// This struct is populated from CLI flags and passed through the
// application rather than kept in global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. Per-root settings that differ between roots live in the
// configuration file (RootConfigs) and are merged in by Settings.
type Config struct {
	// Roots is the list of crawl targets (paths or URLs).
	Roots []string

	// Workers is the number of concurrent sessions per root.
	Workers int

	// MaxRetries is the number of attempts for each backend call.
	MaxRetries int

	// Backoff is the pause between two attempts.
	Backoff time.Duration

	// Timeout bounds a single backend call.
	Timeout time.Duration

	// CrawlTimeout bounds a whole crawl of one root. Zero means no limit.
	// When it expires no new directory is started; running jobs finish.
	CrawlTimeout time.Duration

	// ProgressInterval is how often crawl progress is logged. Zero disables it.
	ProgressInterval time.Duration

	// AllowPartialFailure makes a crawl with unlistable directories succeed.
	AllowPartialFailure bool

	// SkipUnclassified leaves children whose type could not be determined
	// out of the hierarchy instead of recording them as files.
	SkipUnclassified bool

	// Include holds glob patterns a file must match to be recorded.
	Include []string

	// Exclude holds glob patterns that remove files and whole subtrees.
	Exclude []string

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool

	// BatchSize is the number of roots crawled concurrently.
	BatchSize int

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .treecrawl in the current directory,
	// the user's home directory and the XDG config directory.
	ConfigFilePath string

	// RootConfigs holds per-root configuration loaded from the config file.
	RootConfigs *File

	// JSONReport enables JSON report output. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// Manifest adds every hierarchy entry to the report.
	Manifest bool

	// DBDir is the directory holding the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/treecrawl on Linux).
	DBDir string

	// SaveToDB indicates whether crawl runs are stored for later comparison.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (workers, retries, timeout).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Workers:          DefaultWorkers,
		MaxRetries:       DefaultMaxRetries,
		Backoff:          DefaultBackoff,
		Timeout:          DefaultTimeout,
		ProgressInterval: DefaultProgressInterval,
		BatchSize:        DefaultBatchSize,
		DBDir:            XDGDataDir(),
		SaveToDB:         true,
	}
}

// XDGDataDir returns the XDG data directory for treecrawl.
// On Linux: ~/.local/share/treecrawl
// On macOS: ~/Library/Application Support/treecrawl
// On Windows: %LOCALAPPDATA%\treecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for treecrawl.
// On Linux: ~/.config/treecrawl
// On macOS: ~/Library/Application Support/treecrawl
// On Windows: %APPDATA%\treecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as one of the sentinel errors in
// errors.go, so callers can use errors.Is.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return ErrNoRoot
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	if c.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}

	if c.Backoff < 0 {
		return ErrInvalidBackoff
	}

	// Zero timeout would fail every backend call immediately
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.CrawlTimeout < 0 {
		return ErrInvalidCrawlTimeout
	}

	if c.ProgressInterval < 0 {
		return ErrInvalidProgressInterval
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.RootConfigs != nil {
		return c.RootConfigs.Validate()
	}

	return nil
}

// Settings returns the effective settings for root: the file's defaults,
// then its entry for root, then the values given on the command line where
// they differ from the built-in defaults.
func (c *Config) Settings(root string) RootConfig {
	var rc RootConfig
	if c.RootConfigs != nil {
		rc = c.RootConfigs.GetRootConfig(root)
	}

	if rc.Workers == 0 || c.Workers != DefaultWorkers {
		rc.Workers = c.Workers
	}
	if rc.MaxRetries == 0 || c.MaxRetries != DefaultMaxRetries {
		rc.MaxRetries = c.MaxRetries
	}
	if c.AllowPartialFailure {
		allow := true
		rc.AllowPartialFailure = &allow
	}
	if c.SkipUnclassified {
		rc.Unclassified = UnclassifiedSkip
	}
	rc.Include = append(append([]string(nil), rc.Include...), c.Include...)
	rc.Exclude = append(append([]string(nil), rc.Exclude...), c.Exclude...)

	return rc
}
