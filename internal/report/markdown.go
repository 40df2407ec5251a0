package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/pagefetch/internal/model"
)

// DefaultMaxFailureRows caps the failure table of a Markdown report.
const DefaultMaxFailureRows = 500

// MarkdownWriter outputs run reports in Markdown format, for sharing a
// run's result in an issue or a wiki page.
type MarkdownWriter struct {
	baseWriter

	// maxRows caps the failure table; the failure log has the full list.
	maxRows int
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMaxFailureRows caps the failure table at n rows. Zero or less
// removes the table.
func WithMaxFailureRows(n int) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.maxRows = n
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		maxRows:    DefaultMaxFailureRows,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(run *Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeOutcomes(md, run)
	w.writeFailures(md, run)
	w.writeFooter(md, run)

	return len(md.String()), md.Build()
}

// writeHeader writes the run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *Run) {
	md.H1("pagefetch Run Report")
	md.PlainText("")

	s := run.Summary
	rows := [][]string{}
	if run.ID != 0 {
		rows = append(rows, []string{"Run", strconv.FormatInt(run.ID, 10)})
	}
	rows = append(rows,
		[]string{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Elapsed", s.Elapsed().Round(time.Second).String()},
		[]string{"URL list", "`" + run.URLFile + "`"},
		[]string{"Proxy list", "`" + run.ProxyFile + "`"},
		[]string{"Destination", "`" + run.Dest + "`"},
		[]string{"Status", statusText(run)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// statusText returns the status cell of the header table.
func statusText(run *Run) string {
	switch run.Status() {
	case "interrupted":
		return "⚠️ Interrupted (partial results)"
	case "complete":
		return "✅ Complete"
	default:
		return "❌ Complete with failures"
	}
}

// writeOutcomes writes the per-reason totals, a pie chart and an alert.
func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, run *Run) {
	s := run.Summary

	md.H2("Outcomes")
	md.PlainText("")

	rows := [][]string{{"saved", strconv.Itoa(s.Succeeded())}}
	for _, r := range model.FailureReasons {
		rows = append(rows, []string{r.Label(), strconv.Itoa(s.Count(r))})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(s.Total()) + "**"})

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if s.Failed() > 0 {
		w.writePieChart(md, s)
	}

	switch {
	case s.Total() == 0:
		md.Caution("No URL produced an outcome.")
	case s.Succeeded() == 0:
		md.Cautionf("All %d downloads failed. Check the proxy list.", s.Total())
	case s.Failed()*2 > s.Total():
		md.Warningf("%d of %d downloads failed.", s.Failed(), s.Total())
	case s.Failed() > 0:
		md.Notef("%d of %d downloads failed.", s.Failed(), s.Total())
	default:
		md.Tipf("All %d pages were saved.", s.Total())
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of outcome reasons.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Outcome Distribution"),
		piechart.WithShowData(true),
	)

	if n := s.Succeeded(); n > 0 {
		chart.LabelAndIntValue("saved", uint64(n))
	}
	for _, r := range model.FailureReasons {
		if n := s.Count(r); n > 0 {
			chart.LabelAndIntValue(r.Label(), uint64(n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFailures writes the failure table, capped at maxRows.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, run *Run) {
	failures := run.Summary.Failures()
	if len(failures) == 0 || w.maxRows <= 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")

	shown := failures
	if len(shown) > w.maxRows {
		shown = shown[:w.maxRows]
	}

	rows := make([][]string, 0, len(shown))
	for _, f := range failureRows(shown) {
		status := "-"
		if f.Status != 0 {
			status = strconv.Itoa(f.Status)
		}
		rows = append(rows, []string{
			truncateString(f.URL, 80),
			f.Reason,
			status,
			truncateString(f.Proxy, 50),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Reason", "Status", "Proxy"},
		Rows:   rows,
	})
	md.PlainText("")

	if rest := len(failures) - len(shown); rest > 0 {
		md.PlainTextf("... and %d more. See the failure log for the full list.", rest)
		md.PlainText("")
	}
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown, run *Run) {
	md.HorizontalRule()
	md.PlainText("")
	if run.Version != "" {
		md.PlainTextf("*Report generated by pagefetch %s*", run.Version)
		return
	}
	md.PlainText("*Report generated by pagefetch*")
}
