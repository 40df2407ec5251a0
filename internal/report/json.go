package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/pagefetch/internal/model"
)

// JSONWriter outputs run reports in JSON format, for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport is the JSON document written for a run.
type JSONReport struct {
	RunID      int64          `json:"run_id,omitempty"`
	Version    string         `json:"version,omitempty"`
	Status     string         `json:"status"`
	URLFile    string         `json:"url_file"`
	ProxyFile  string         `json:"proxy_file"`
	Dest       string         `json:"dest"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	ElapsedMS  int64          `json:"elapsed_ms"`
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	ByReason   map[string]int `json:"by_reason"`
	Failures   []failureRow   `json:"failures"`
}

// NewJSONReport builds the JSON document of a run. ByReason only has
// the reasons that occurred.
func NewJSONReport(run *Run) *JSONReport {
	s := run.Summary

	byReason := make(map[string]int)
	for _, r := range model.FailureReasons {
		if n := s.Count(r); n > 0 {
			byReason[r.Label()] = n
		}
	}

	return &JSONReport{
		RunID:      run.ID,
		Version:    run.Version,
		Status:     run.Status(),
		URLFile:    run.URLFile,
		ProxyFile:  run.ProxyFile,
		Dest:       run.Dest,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		ElapsedMS:  s.Elapsed().Milliseconds(),
		Total:      s.Total(),
		Succeeded:  s.Succeeded(),
		Failed:     s.Failed(),
		ByReason:   byReason,
		Failures:   failureRows(s.Failures()),
	}
}

// Write outputs the run report in JSON format.
func (w *JSONWriter) Write(run *Run) (int, error) {
	return w.writeJSON(NewJSONReport(run))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
