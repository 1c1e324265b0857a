package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/treecrawl/internal/backend"
	"github.com/nao1215/treecrawl/internal/crawler"
)

// CrawlStep explores the backend below the root and feeds every discovered
// path into the run's builder.
//
// Design decision: The step owns the backend sessions for the duration of
// the crawl. Sessions are opened in Do and always closed before it returns,
// so a batch of roots never holds more connections than it is crawling.
type CrawlStep struct {
	// backend lists directories and classifies children.
	backend backend.Backend

	// root is the absolute crawl root inside the backend's path space.
	root string

	// workers is the number of sessions opened on the backend.
	workers int

	// allowPartialFailure makes a crawl with failed directories succeed.
	allowPartialFailure bool

	// timeout bounds the whole crawl. Zero means no limit.
	timeout time.Duration

	// walkerOpts are passed through to the crawler.
	walkerOpts []crawler.WalkerOption

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithWorkers sets the number of backend sessions.
func WithWorkers(n int) CrawlStepOption {
	return func(s *CrawlStep) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithPartialFailure sets whether failed directories fail the crawl.
func WithPartialFailure(allow bool) CrawlStepOption {
	return func(s *CrawlStep) {
		s.allowPartialFailure = allow
	}
}

// WithCrawlTimeout bounds the whole crawl. Jobs already running when it
// expires still finish their retries.
func WithCrawlTimeout(d time.Duration) CrawlStepOption {
	return func(s *CrawlStep) {
		s.timeout = d
	}
}

// WithWalkerOptions adds crawler options (retries, backoff, progress).
func WithWalkerOptions(opts ...crawler.WalkerOption) CrawlStepOption {
	return func(s *CrawlStep) {
		s.walkerOpts = append(s.walkerOpts, opts...)
	}
}

// WithCrawlLogger sets a custom logger for the crawl step and its walker.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a crawl step for root on b.
func NewCrawlStep(b backend.Backend, root string, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		backend: b,
		root:    crawler.NormalizePath(root),
		workers: 1,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	report := run.Report
	report.RootPath = s.root
	report.Driver = run.Builder.Driver()
	report.Workers = s.workers
	report.AllowPartialFailure = s.allowPartialFailure

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sessions, err := s.backend.Open(ctx, s.workers)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", s.backend.Driver(), err)
	}
	defer func() {
		if cerr := s.backend.Close(sessions); cerr != nil {
			s.logger.Warn("closing sessions failed", "root", report.Root, "error", cerr)
		}
	}()

	opts := append([]crawler.WalkerOption{
		crawler.WithAllowPartialFailure(s.allowPartialFailure),
		crawler.WithWalkerLogger(s.logger),
	}, s.walkerOpts...)
	walker := crawler.NewWalker(s.backend, run.Builder.Include, opts...)

	outcome, err := walker.Crawl(ctx, s.root, sessions)
	if outcome != nil {
		report.Jobs = outcome.Jobs
		report.Failed = outcome.Failed
		report.Unclassified = outcome.Unclassified
		report.Abandoned = outcome.Abandoned
		report.Cancelled = outcome.Cancelled
		report.Success = outcome.Success
	}
	if err != nil && errors.Is(err, context.DeadlineExceeded) && s.timeout > 0 {
		return fmt.Errorf("crawl timed out after %s: %w", s.timeout, err)
	}
	return err
}

// AncestorStep adds directory entries for the crawl root and every prefix
// of it, so that the hierarchy is closed under parent lookup even though
// the walker never offers the root itself.
type AncestorStep struct {
	logger *slog.Logger
}

// NewAncestorStep creates an ancestor synthesis step.
func NewAncestorStep(logger *slog.Logger) *AncestorStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &AncestorStep{logger: logger}
}

// Name returns the step name.
func (s *AncestorStep) Name() string {
	return "ancestors"
}

// Do executes the ancestor step.
func (s *AncestorStep) Do(_ context.Context, run *Run) error {
	added := run.Builder.AddAncestorPrefixes(run.Report.RootPath)
	s.logger.Debug("ancestor directories added",
		"root", run.Report.RootPath,
		"added", added,
	)
	return nil
}

// ValidateStep checks that every entry has a directory above it.
type ValidateStep struct{}

// NewValidateStep creates a hierarchy validation step.
func NewValidateStep() *ValidateStep {
	return &ValidateStep{}
}

// Name returns the step name.
func (s *ValidateStep) Name() string {
	return "validate"
}

// Do executes the validation step.
func (s *ValidateStep) Do(_ context.Context, run *Run) error {
	return run.Builder.Hierarchy().Validate()
}

// FingerprintStep records a digest of the finished hierarchy on the report.
type FingerprintStep struct{}

// NewFingerprintStep creates a fingerprint step.
func NewFingerprintStep() *FingerprintStep {
	return &FingerprintStep{}
}

// Name returns the step name.
func (s *FingerprintStep) Name() string {
	return "fingerprint"
}

// Do executes the fingerprint step.
func (s *FingerprintStep) Do(_ context.Context, run *Run) error {
	run.Report.Fingerprint = run.Builder.Hierarchy().Fingerprint()
	return nil
}

// Default builds the standard crawl pipeline for root on b:
// crawl, ancestors, validate, fingerprint.
func Default(b backend.Backend, root string, pipelineOpts []Option, crawlOpts ...CrawlStepOption) *Pipeline {
	p := New(pipelineOpts...)
	crawlOpts = append([]CrawlStepOption{WithCrawlLogger(p.logger)}, crawlOpts...)
	p.AddSteps(
		NewCrawlStep(b, root, crawlOpts...),
		NewAncestorStep(p.logger),
		NewValidateStep(),
		NewFingerprintStep(),
	)
	return p
}
