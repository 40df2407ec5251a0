package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/pagefetch/internal/model"
	"golang.org/x/sync/errgroup"
)

// OutcomeHandler observes finished outcomes. Handlers are called from
// worker goroutines and must be safe for concurrent use.
type OutcomeHandler func(model.Outcome)

// ProgressReporter tracks how many URLs have finished.
type ProgressReporter interface {
	Start(total int)
	Increment()
	Finish()
}

// Orchestrator runs one Worker per URL under a connection ceiling.
type Orchestrator struct {
	worker *Worker

	// concurrency is the maximum number of workers running at once.
	// Zero means no ceiling; the proxy pool still bounds active fetches.
	concurrency int

	logger   *slog.Logger
	handlers []OutcomeHandler
	progress ProgressReporter
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConcurrency sets the connection ceiling. Zero removes the ceiling.
// Negative values are ignored.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithOutcomeHandler adds an observer called once per finished URL.
func WithOutcomeHandler(h OutcomeHandler) OrchestratorOption {
	return func(o *Orchestrator) {
		if h != nil {
			o.handlers = append(o.handlers, h)
		}
	}
}

// WithProgress sets the progress reporter.
func WithProgress(p ProgressReporter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.progress = p
	}
}

// NewOrchestrator creates an Orchestrator driving worker.
// The default ceiling is 100 concurrent connections.
func NewOrchestrator(worker *Worker, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		worker:      worker,
		concurrency: 100,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Run processes every URL and returns when all workers have finished.
//
// Per-URL failures never make Run fail; they are recorded in the summary.
// Run returns an error only if ctx is cancelled, in which case URLs whose
// workers had not leased a proxy yet have no outcome.
func (o *Orchestrator) Run(ctx context.Context, urls []string) (*model.RunSummary, error) {
	o.logger.Info("starting downloads",
		"urls", len(urls),
		"concurrency", o.concurrency,
	)

	summary := model.NewRunSummary(time.Now())
	if o.progress != nil {
		o.progress.Start(len(urls))
	}

	g, gctx := errgroup.WithContext(ctx)
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	for _, rawURL := range urls {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome, err := o.worker.Process(gctx, rawURL)
			if err != nil {
				return err
			}

			summary.Add(outcome)
			for _, h := range o.handlers {
				h(outcome)
			}
			if o.progress != nil {
				o.progress.Increment()
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil && summary.Total() < len(urls) {
		err = ctx.Err()
	}
	summary.Finish(time.Now())
	if o.progress != nil {
		o.progress.Finish()
	}

	o.logger.Info("downloads complete",
		"total", summary.Total(),
		"succeeded", summary.Succeeded(),
		"failed", summary.Failed(),
		"elapsed", summary.Elapsed(),
	)
	return summary, err
}
