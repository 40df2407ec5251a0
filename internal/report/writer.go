package report

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/nao1215/pagefetch/internal/log"
	"github.com/nao1215/pagefetch/internal/model"
)

// Run is the input of every report: the summary of one batch run plus
// the context it ran in.
type Run struct {
	// ID is the run history ID, or 0 when history is disabled.
	ID int64

	// Version is the pagefetch version that produced the run.
	Version string

	// URLFile, ProxyFile and Dest are the inputs and output folder.
	URLFile   string
	ProxyFile string
	Dest      string

	// Interrupted is set when the run was cancelled before every URL
	// produced an outcome.
	Interrupted bool

	// Summary holds the outcome totals and the failed outcomes.
	Summary *model.RunSummary
}

// Status returns a one-word run status.
func (r *Run) Status() string {
	switch {
	case r.Interrupted:
		return "interrupted"
	case r.Summary.Failed() == 0:
		return "complete"
	default:
		return "complete with failures"
	}
}

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(run *Run) (int, error)
}

// ForPath returns the writer matching the extension of path:
// ".json" selects JSON, anything else Markdown.
func ForPath(path string, output io.Writer) Writer {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONWriter(output, WithPrettyPrint())
	}
	return NewMarkdownWriter(output)
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// failureRow is the printable form of a failed outcome. Proxy
// credentials never reach a report.
type failureRow struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
	Status int    `json:"status,omitempty"`
	Proxy  string `json:"proxy"`
}

func failureRows(outcomes []model.Outcome) []failureRow {
	rows := make([]failureRow, len(outcomes))
	for i, o := range outcomes {
		rows[i] = failureRow{
			URL:    o.URL,
			Reason: o.Reason.Label(),
			Status: o.StatusCode,
			Proxy:  log.RedactCredentials(o.Proxy),
		}
	}
	return rows
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
