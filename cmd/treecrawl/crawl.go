package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/treecrawl/internal/backend"
	"github.com/nao1215/treecrawl/internal/config"
	"github.com/nao1215/treecrawl/internal/crawler"
	"github.com/nao1215/treecrawl/internal/database"
	"github.com/nao1215/treecrawl/internal/hierarchy"
	"github.com/nao1215/treecrawl/internal/log"
	"github.com/nao1215/treecrawl/internal/pipeline"
	"github.com/nao1215/treecrawl/internal/report"
	"github.com/spf13/cobra"
)

// ErrCrawlFailed is returned when at least one root did not crawl successfully.
var ErrCrawlFailed = errors.New("crawl failed")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [root...]",
		Short: "Crawl one or more directory trees and build their manifests",
		Long: `Crawl lists every directory below each root with a pool of concurrent
workers and records the files and directories it finds.

Supported roots:
- Local directories: /srv/data, ./data or file:///srv/data
- FTP servers: ftp://[user[:password]@]host[:port]/path
- HTTP directory indexes: http://host/path/ or https://host/path/

Every crawl is saved to the local database unless --no-db is given.
Use 'treecrawl compare' to see what changed between two crawls.

Examples:
  # Crawl a local directory
  treecrawl crawl /srv/mirror

  # Crawl an FTP server with 8 workers and accept unreadable directories
  treecrawl crawl -w 8 --allow-partial ftp://ftp.example.org/pub

  # Crawl through a SOCKS5 proxy
  treecrawl crawl --proxy 127.0.0.1:1080 ftp://ftp.example.org/pub

  # Only record ISO images, skip a subtree
  treecrawl crawl --include '*.iso' --exclude '/pub/old/*' ftp://ftp.example.org/pub

  # Write the full manifest as JSON
  treecrawl crawl --json --manifest -o manifest.json https://mirror.example.org/releases/

  # Crawl three roots, two at a time
  treecrawl crawl -b 2 /srv/a /srv/b ftp://ftp.example.org/pub

Configuration file (.treecrawl) example:
  defaults:
    workers: 4
    metadata:
      revalidation: 24h
  roots:
    ftp://ftp.example.org/pub:
      maxRetries: 5
      allowPartialFailure: true`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent workers per root")
	cmd.Flags().IntP("max-retries", "r", config.DefaultMaxRetries,
		"Attempts per backend call before giving up on a path")
	cmd.Flags().Duration("backoff", config.DefaultBackoff,
		"Pause between two attempts of a backend call")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each backend call")
	cmd.Flags().Duration("crawl-timeout", 0,
		"Timeout for the whole crawl of one root (0 means no limit)")
	cmd.Flags().Duration("progress", config.DefaultProgressInterval,
		"Interval between progress log lines (0 disables them)")
	cmd.Flags().Bool("allow-partial", false,
		"Succeed even if some directories could not be listed")
	cmd.Flags().Bool("skip-unclassified", false,
		"Leave out children that could not be classified instead of recording them as files")

	// Inclusion policy flags
	cmd.Flags().StringArray("include", nil,
		"Glob pattern files must match (repeatable)")
	cmd.Flags().StringArray("exclude", nil,
		"Glob pattern for files and directories to skip (repeatable)")

	// Connection flags
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy address for FTP and HTTP roots (e.g., 127.0.0.1:1080)")

	// Batch crawling flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of roots crawled concurrently")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .treecrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("manifest", false,
		"Include every manifest entry in the report")

	// Database flags
	cmd.Flags().Bool("no-db", false,
		"Do not save the crawl to the database")
	cmd.Flags().String("db-dir", "",
		"Database directory (default: XDG data directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.New(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.Workers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
		return nil, err
	}
	if cfg.Backoff, err = flags.GetDuration("backoff"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.CrawlTimeout, err = flags.GetDuration("crawl-timeout"); err != nil {
		return nil, err
	}
	if cfg.ProgressInterval, err = flags.GetDuration("progress"); err != nil {
		return nil, err
	}
	if cfg.AllowPartialFailure, err = flags.GetBool("allow-partial"); err != nil {
		return nil, err
	}
	if cfg.SkipUnclassified, err = flags.GetBool("skip-unclassified"); err != nil {
		return nil, err
	}
	if cfg.Include, err = flags.GetStringArray("include"); err != nil {
		return nil, err
	}
	if cfg.Exclude, err = flags.GetStringArray("exclude"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Manifest, err = flags.GetBool("manifest"); err != nil {
		return nil, err
	}

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	cfg.Verbose = getPersistentBool(cmd, "verbose")
	cfg.LogJSON = getPersistentBool(cmd, "log-json")

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.RootConfigs, err = loadRootConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	cfg.Roots = args

	return cfg, nil
}

// loadRootConfigs loads the configuration file.
// If the user explicitly specified a path, a missing file is an error.
// Otherwise an empty configuration is used when no file is found.
func loadRootConfigs(explicitPath string) (*config.File, error) {
	configPath := config.FindConfigFile(explicitPath)
	if configPath == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
		}
		return &config.File{Roots: make(map[string]config.RootConfig)}, nil
	}

	cf, err := config.LoadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	return cf, nil
}

// crawlRunner holds what every root of one invocation shares.
type crawlRunner struct {
	cfg    *config.Config
	db     *database.CrawlDB
	writer report.Writer
	status io.Writer
	logger *slog.Logger

	// mu serializes report output and database writes in batch mode.
	mu sync.Mutex

	// failed collects the roots whose crawl did not succeed.
	failed []string
}

// runCrawl executes the crawl of every configured root.
func runCrawl(ctx context.Context, cfg *config.Config, stdout, status io.Writer, logger *slog.Logger) error {
	if len(cfg.Roots) == 0 {
		return errors.New("no roots provided (specify one or more directories or URLs as arguments)")
	}

	logger.Info("starting crawl",
		"roots", cfg.Roots,
		"workers", cfg.Workers,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	if cfg.ProxyAddress != "" {
		if err := backend.CheckProxy(ctx, cfg.ProxyAddress); err != nil {
			return fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)", err, cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}

	r := &crawlRunner{
		cfg:    cfg,
		status: status,
		logger: logger,
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		r.db = db
		logger.Info("database opened", "path", db.Path())
	}

	output, closeOutput, err := openOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOutput()
	r.writer = newReportWriter(cfg, output)

	if len(cfg.Roots) > 1 && cfg.BatchSize > 1 {
		err = r.runBatch(ctx)
	} else {
		err = r.runSequential(ctx)
	}
	if err != nil {
		return err
	}

	if len(r.failed) > 0 {
		return fmt.Errorf("%w: %s", ErrCrawlFailed, strings.Join(r.failed, ", "))
	}
	return nil
}

// runSequential crawls roots one at a time.
func (r *crawlRunner) runSequential(ctx context.Context) error {
	for _, root := range r.cfg.Roots {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(r.status, "Crawling %s...\n", root)
		startTime := time.Now()

		p, run, err := r.prepare(root)
		if err != nil {
			r.logger.Error("cannot prepare crawl", "root", root, "error", err)
			fmt.Fprintf(r.status, "Crawl error for %s: %v\n", root, err)
			run = pipeline.NewRun(root, hierarchy.NewBuilder())
			run.Report.SetError(err)
			run.Report.FinishedAt = time.Now()
			r.finish(ctx, run)
			continue
		}

		// The error is recorded on the report.
		_ = p.Execute(ctx, run) //nolint:errcheck

		fmt.Fprintf(r.status, "Crawl finished in %s\n\n", time.Since(startTime).Round(time.Millisecond))
		r.finish(ctx, run)
	}
	return nil
}

// runBatch crawls several roots concurrently using BatchProcessor.
func (r *crawlRunner) runBatch(ctx context.Context) error {
	fmt.Fprintf(r.status, "Starting batch crawl of %d roots (concurrency: %d)...\n\n",
		len(r.cfg.Roots), r.cfg.BatchSize)
	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(
		r.prepare,
		pipeline.WithConcurrency(r.cfg.BatchSize),
		pipeline.WithBatchLogger(r.logger),
	)

	err := bp.ProcessBatchWithCallback(ctx, r.cfg.Roots, func(run *pipeline.Run, index int) {
		r.mu.Lock()
		fmt.Fprintf(r.status, "[%d/%d] Crawl finished: %s\n", index+1, len(r.cfg.Roots), run.Report.Root)
		r.mu.Unlock()
		r.finish(ctx, run)
	})

	fmt.Fprintf(r.status, "\nBatch crawl completed in %s\n", time.Since(startTime).Round(time.Millisecond))
	return err
}

// prepare builds the backend, builder and pipeline for root, applying the
// settings of the configuration file for that root.
func (r *crawlRunner) prepare(root string) (*pipeline.Pipeline, *pipeline.Run, error) {
	settings := r.cfg.Settings(root)

	dialer, err := backend.NewDialer(r.cfg.ProxyAddress)
	if err != nil {
		return nil, nil, err
	}

	b, crawlRoot, err := backend.Resolve(root,
		backend.WithDialer(dialer),
		backend.WithTimeout(r.cfg.Timeout),
		backend.WithHeaders(settings.Headers),
		backend.WithLogger(r.logger),
	)
	if err != nil {
		return nil, nil, err
	}

	meta, err := entryMetadata(settings.Metadata)
	if err != nil {
		return nil, nil, err
	}

	driver := b.Driver()
	if settings.Metadata.Driver != "" {
		driver = settings.Metadata.Driver
	}

	filter := crawler.NewPatternFilter(settings.Include, settings.Exclude)
	builder := hierarchy.NewBuilder(
		hierarchy.WithPolicy(filter.Allow),
		hierarchy.WithDriver(driver),
		hierarchy.WithMetadata(meta),
		hierarchy.WithBuilderLogger(r.logger),
	)

	unclassified := crawler.ClassifyAsFile
	if settings.Unclassified == config.UnclassifiedSkip {
		unclassified = crawler.SkipUnclassified
	}

	p := pipeline.Default(b, crawlRoot,
		[]pipeline.Option{
			pipeline.WithLogger(r.logger),
			pipeline.WithContinueOnError(true),
		},
		pipeline.WithWorkers(settings.Workers),
		pipeline.WithPartialFailure(settings.PartialFailureAllowed()),
		pipeline.WithCrawlTimeout(r.cfg.CrawlTimeout),
		pipeline.WithWalkerOptions(
			crawler.WithMaxRetries(settings.MaxRetries),
			crawler.WithBackoff(r.cfg.Backoff),
			crawler.WithUnclassifiedPolicy(unclassified),
			crawler.WithProgressInterval(r.cfg.ProgressInterval),
		),
	)

	return p, pipeline.NewRun(root, builder), nil
}

// entryMetadata converts the metadata section of a root configuration into
// builder callbacks.
func entryMetadata(mc config.MetadataConfig) (hierarchy.Metadata, error) {
	dirPerm, filePerm, err := mc.Permissions(hierarchy.DefaultDirPermission, hierarchy.DefaultFilePermission)
	if err != nil {
		return hierarchy.Metadata{}, err
	}
	revalidation, err := mc.RevalidationInterval(hierarchy.DefaultRevalidation)
	if err != nil {
		return hierarchy.Metadata{}, err
	}
	return hierarchy.StaticMetadata(dirPerm, filePerm, revalidation, mc.QueryString), nil
}

// finish writes the report for run and saves it to the database.
func (r *crawlRunner) finish(ctx context.Context, run *pipeline.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := run.Report
	if !rep.Success {
		r.failed = append(r.failed, rep.Root)
	}

	entries := run.Builder.Hierarchy().Entries()

	var err error
	if r.cfg.Manifest {
		_, err = r.writer.WriteManifest(rep, entries)
	} else {
		_, err = r.writer.Write(rep)
	}
	if err != nil {
		r.logger.Error("report failed", "root", rep.Root, "error", err)
	}

	// Roots that never got past preparation have nothing to compare.
	if r.db == nil || len(rep.PerformedSteps) == 0 {
		return
	}
	// An interrupted crawl is still worth keeping.
	id, err := r.db.SaveRun(context.WithoutCancel(ctx), rep, entries)
	if err != nil {
		r.logger.Error("failed to save crawl run", "root", rep.Root, "error", err)
		return
	}
	r.logger.Info("crawl run saved to database", "root", rep.Root, "id", id)
}

// openOutput returns the report destination: the file at path, created
// with owner-only permissions, or stdout when path is empty.
func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Manifests reveal the layout of private servers.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// newReportWriter selects the report format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}
