package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/treecrawl/internal/hierarchy"
	"github.com/nao1215/treecrawl/internal/model"
)

// Run is the state shared by the steps of one crawl.
type Run struct {
	// Report accumulates what the steps found.
	Report *model.CrawlReport

	// Builder receives the discovered paths and owns the hierarchy.
	Builder *hierarchy.Builder
}

// NewRun creates a Run for root with a fresh report.
func NewRun(root string, builder *hierarchy.Builder) *Run {
	return &Run{
		Report:  model.NewCrawlReport(root),
		Builder: builder,
	}
}

// Summarize copies the builder's counters into the report.
func (r *Run) Summarize() {
	if r.Builder == nil {
		return
	}
	files, dirs := r.Builder.Hierarchy().Counts()
	stats := r.Builder.Stats()
	r.Report.FileCount = files
	r.Report.DirCount = dirs
	r.Report.Rejected = stats.Rejected
	r.Report.Duplicates = stats.Duplicates
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the run
// modified by the previous steps.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
type Step interface {
	// Do executes the pipeline step.
	// Returns an error if the step fails; the pipeline records it on the report.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The first error is recorded on the report and
// the run is marked unsuccessful, but subsequent steps still execute.
//
// Design decision: This option exists because a strict crawl that lost a
// few directories still produces a hierarchy worth validating and
// reporting. The default is to stop, since most step failures leave
// nothing useful for later steps.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Design decision: We check ctx.Done() before each step rather than
// during, because steps handle their own cancellation (the crawl step
// drains running jobs before returning).
//
// Whatever happens, the report's counters and FinishedAt are filled in
// before Execute returns. Returns the first step error if continueOnError
// is false, or the context error if the run was cancelled.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	report := run.Report
	defer func() {
		run.Summarize()
		report.FinishedAt = time.Now()
	}()

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			report.Cancelled = true
			report.Success = false
			if report.Error == nil {
				report.SetError(ctx.Err())
			}
			return ctx.Err()
		default:
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"root", report.Root,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"root", report.Root,
				"error", err,
			)

			report.Success = false
			if report.Error == nil {
				report.SetError(err)
			}

			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"root", report.Root,
			)
		}

		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
