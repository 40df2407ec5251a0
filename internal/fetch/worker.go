package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/pagefetch/internal/model"
	"github.com/nao1215/pagefetch/internal/output"
	"github.com/nao1215/pagefetch/internal/proxypool"
	"github.com/nao1215/pagefetch/internal/sanitize"
)

// Fetcher performs one request for rawURL through proxyAddr.
// *Client implements Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, proxyAddr string) (*Page, error)
}

// PageSaver persists a successfully fetched page.
// *output.PageWriter implements PageSaver.
type PageSaver interface {
	Save(rawURL, html, text string) (output.SavedPage, error)
}

// FailureSink records failed outcomes.
// *output.FailureReporter implements FailureSink.
type FailureSink interface {
	Report(o model.Outcome) error
}

// Worker processes a single URL: lease a proxy, fetch, classify, then
// save the page or report the failure, and release the proxy.
type Worker struct {
	fetcher  Fetcher
	pool     *proxypool.Pool
	saver    PageSaver
	failures FailureSink
	logger   *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates a Worker.
func NewWorker(fetcher Fetcher, pool *proxypool.Pool, saver PageSaver, failures FailureSink, opts ...WorkerOption) *Worker {
	w := &Worker{
		fetcher:  fetcher,
		pool:     pool,
		saver:    saver,
		failures: failures,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Process handles rawURL and returns its outcome.
//
// The leased proxy is released on every path, including a panic in the
// fetcher. An error is returned only if ctx ended before a proxy could be
// leased; in that case no outcome exists for rawURL.
func (w *Worker) Process(ctx context.Context, rawURL string) (model.Outcome, error) {
	var outcome model.Outcome
	err := w.pool.Do(ctx, func(addr string) error {
		start := time.Now()
		w.logger.Debug("fetching", "url", rawURL, "proxy", addr)

		outcome = w.attempt(ctx, rawURL, addr)
		outcome = w.finalize(outcome)
		outcome.Duration = time.Since(start)
		return nil
	})
	if err != nil {
		return model.Outcome{}, err
	}
	return outcome, nil
}

// attempt fetches rawURL and classifies the result.
func (w *Worker) attempt(ctx context.Context, rawURL, addr string) (outcome model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = model.NewFailure(rawURL, addr, model.ReasonUnhandled, 0, fmt.Errorf("panic: %v", r))
		}
	}()

	page, err := w.fetcher.Fetch(ctx, rawURL, addr)
	if page == nil && err == nil {
		err = ErrNoPage
	}

	status := 0
	if page != nil {
		status = page.StatusCode
	}

	if reason := Classify(status, err); reason != model.ReasonNone {
		return model.NewFailure(rawURL, addr, reason, status, err)
	}
	if page.Truncated {
		w.logger.Debug("body truncated at size limit", "url", rawURL, "bytes", len(page.HTML))
	}
	return model.NewSuccess(rawURL, addr, status, page.HTML, sanitize.Text(page.HTML))
}

// finalize saves a successful page or reports a failure. A page that
// cannot be saved becomes an unhandled failure.
func (w *Worker) finalize(outcome model.Outcome) (result model.Outcome) {
	result = outcome
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while finalizing outcome", "url", outcome.URL, "panic", r)
			result = model.NewFailure(outcome.URL, outcome.Proxy, model.ReasonUnhandled, outcome.StatusCode, fmt.Errorf("panic: %v", r))
		}
	}()

	if outcome.OK() {
		saved, err := w.saver.Save(outcome.URL, outcome.HTML, outcome.Text)
		if err == nil {
			w.logger.Debug("fetched successfully", "url", outcome.URL, "proxy", outcome.Proxy, "path", saved.HTMLPath)
			return outcome
		}
		w.logger.Error("failed to save page", "url", outcome.URL, "error", err)
		result = model.NewFailure(outcome.URL, outcome.Proxy, model.ReasonUnhandled, outcome.StatusCode, err)
	}

	if err := w.failures.Report(result); err != nil {
		w.logger.Error("failed to record failure", "url", result.URL, "error", err)
	}
	return result
}
