package model

import (
	"sync"
	"time"
)

// RunSummary aggregates the outcomes of one batch run.
// It is safe for concurrent use.
type RunSummary struct {
	mu sync.Mutex

	// StartedAt is the time the run started.
	StartedAt time.Time

	// FinishedAt is the time the last worker finished.
	FinishedAt time.Time

	total     int
	succeeded int
	byReason  map[Reason]int
	failures  []Outcome
}

// NewRunSummary creates an empty summary stamped with the given start time.
func NewRunSummary(startedAt time.Time) *RunSummary {
	return &RunSummary{
		StartedAt: startedAt,
		byReason:  make(map[Reason]int),
	}
}

// Add records one outcome. Failed outcomes are kept without their body.
func (s *RunSummary) Add(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if o.OK() {
		s.succeeded++
		return
	}
	s.byReason[o.Reason]++
	o.HTML, o.Text = "", ""
	s.failures = append(s.failures, o)
}

// Finish stamps the finish time.
func (s *RunSummary) Finish(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FinishedAt = at
}

// Total returns the number of recorded outcomes.
func (s *RunSummary) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Succeeded returns the number of successful outcomes.
func (s *RunSummary) Succeeded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.succeeded
}

// Failed returns the number of failed outcomes.
func (s *RunSummary) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total - s.succeeded
}

// Count returns the number of failures with the given reason.
func (s *RunSummary) Count(r Reason) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byReason[r]
}

// Failures returns a copy of the failed outcomes in completion order.
func (s *RunSummary) Failures() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Outcome, len(s.failures))
	copy(out, s.failures)
	return out
}

// Elapsed returns the run duration, or zero if the run has not finished.
func (s *RunSummary) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
