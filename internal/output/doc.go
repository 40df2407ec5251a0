// Package output persists the results of a batch run.
//
// PageWriter stores a successful fetch as two sibling files, the raw HTML
// and its sanitized text, under a directory named after the URL host.
// FailureReporter appends one line per unfetchable URL to the shared
// failure log and mirrors it as an error-level log event.
package output
