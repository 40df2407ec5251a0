// Package report renders the summary of a batch run.
//
// Writers:
//   - SimpleWriter: plain-text totals printed to the terminal after a run
//   - MarkdownWriter: shareable report with a per-reason table, a mermaid
//     pie chart and the failure list
//   - JSONWriter: the same data for tool integration
//
// ForPath picks the file writer from the --report path extension.
// Proxy credentials are redacted from every report.
package report
