package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/pagefetch/internal/model"
)

// SimpleWriter outputs a plain-text run summary for the terminal.
// It is printed after every run; failures are listed only in verbose
// mode since the failure log already has them.
type SimpleWriter struct {
	baseWriter

	// verbose lists every failure after the totals.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables the failure listing.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run summary in human-readable format.
func (w *SimpleWriter) Write(run *Run) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, run)
	w.writeReasons(&sb, run.Summary)
	if w.verbose {
		w.writeFailures(&sb, run.Summary)
	}

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the run totals.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, run *Run) {
	s := run.Summary

	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")

	if run.ID != 0 {
		fmt.Fprintf(sb, "Run:        #%d\n", run.ID)
	}
	fmt.Fprintf(sb, "Status:     %s\n", run.Status())
	fmt.Fprintf(sb, "Elapsed:    %s\n", s.Elapsed().Round(time.Millisecond))
	fmt.Fprintf(sb, "Saved:      %d/%d", s.Succeeded(), s.Total())
	if run.Dest != "" {
		fmt.Fprintf(sb, " -> %s", run.Dest)
	}
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Failed:     %d\n", s.Failed())
}

// writeReasons writes the count of every reason that occurred.
func (w *SimpleWriter) writeReasons(sb *strings.Builder, s *model.RunSummary) {
	if s.Failed() > 0 {
		sb.WriteString("\n")
		for _, r := range model.FailureReasons {
			if n := s.Count(r); n > 0 {
				fmt.Fprintf(sb, "  %-20s %d\n", r.Label(), n)
			}
		}
	}
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
}

// writeFailures lists every failed URL.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, s *model.RunSummary) {
	for _, f := range failureRows(s.Failures()) {
		if f.Status != 0 {
			fmt.Fprintf(sb, "  [%s:%d] %s (proxy %s)\n", f.Reason, f.Status, f.URL, f.Proxy)
			continue
		}
		fmt.Fprintf(sb, "  [%s] %s (proxy %s)\n", f.Reason, f.URL, f.Proxy)
	}
}
