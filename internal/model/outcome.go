package model

import (
	"fmt"
	"time"
)

// Outcome is the terminal classification of one URL's fetch attempt.
// Exactly one Outcome is produced per URL per run.
//
// A successful Outcome has Reason == ReasonNone and carries the decoded
// HTML and its sanitized text. A failed Outcome carries the Reason and,
// for ReasonHTTPStatus, the response status code.
type Outcome struct {
	// URL is the address that was fetched.
	URL string

	// Proxy is the proxy address leased for the attempt, exactly as it
	// appears in the proxy list.
	Proxy string

	// Reason is ReasonNone on success.
	Reason Reason

	// StatusCode is the HTTP status of the response, or 0 when no
	// response was received.
	StatusCode int

	// HTML is the decoded response body. Empty on failure.
	HTML string

	// Text is the sanitized plain-text rendering of HTML. Empty on failure.
	Text string

	// Duration is the wall time spent between proxy lease and release.
	Duration time.Duration

	// Err is the underlying error for failed outcomes. It is kept for
	// debug logging only; Reason is the classification.
	Err error
}

// NewSuccess creates a successful Outcome.
func NewSuccess(url, proxy string, status int, html, text string) Outcome {
	return Outcome{
		URL:        url,
		Proxy:      proxy,
		Reason:     ReasonNone,
		StatusCode: status,
		HTML:       html,
		Text:       text,
	}
}

// NewFailure creates a failed Outcome.
// Passing ReasonNone is a programming error and is coerced to ReasonUnhandled.
func NewFailure(url, proxy string, reason Reason, status int, err error) Outcome {
	if reason == ReasonNone {
		reason = ReasonUnhandled
	}
	return Outcome{
		URL:        url,
		Proxy:      proxy,
		Reason:     reason,
		StatusCode: status,
		Err:        err,
	}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.Reason == ReasonNone
}

// FailureLine renders the outcome as a failure log line:
//
//	{url} {reason}[:{status}]. Proxy: {proxy}
//
// The status suffix is only present for HTTP status failures.
func (o Outcome) FailureLine() string {
	if o.Reason == ReasonHTTPStatus && o.StatusCode != 0 {
		return fmt.Sprintf("%s %s:%d. Proxy: %s", o.URL, o.Reason, o.StatusCode, o.Proxy)
	}
	return fmt.Sprintf("%s %s. Proxy: %s", o.URL, o.Reason, o.Proxy)
}
