package database

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nao1215/pagefetch/internal/model"
)

// Recorder stores the outcomes of one run as they complete.
// Record has the signature of an outcome handler and is safe for
// concurrent use.
type Recorder struct {
	db     *HistoryDB
	runID  int64
	ctx    context.Context //nolint:containedctx // outlives the cancelled run context
	logger *slog.Logger

	mu     sync.Mutex
	failed int
	err    error
}

// NewRecorder returns a Recorder for runID. Outcomes are still recorded
// after ctx is cancelled, so an interrupted run keeps its history.
func NewRecorder(ctx context.Context, db *HistoryDB, runID int64, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		db:     db,
		runID:  runID,
		ctx:    context.WithoutCancel(ctx),
		logger: logger,
	}
}

// RunID returns the ID of the run being recorded.
func (r *Recorder) RunID() int64 {
	return r.runID
}

// Record stores o. A storage error is logged and kept for Err; it never
// stops the run.
func (r *Recorder) Record(o model.Outcome) {
	err := r.db.RecordOutcome(r.ctx, r.runID, NewOutcomeRecord(o))
	if err == nil {
		return
	}

	r.logger.Warn("failed to record outcome", "url", o.URL, "run", r.runID, "error", err)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first storage error and the number of outcomes that
// could not be stored.
func (r *Recorder) Err() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed, r.err
}
