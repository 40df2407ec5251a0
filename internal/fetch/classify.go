package fetch

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"io"
	"net"
	"os"
	"strings"

	"github.com/nao1215/pagefetch/internal/model"
)

// Classify maps the result of one fetch onto a failure reason.
//
// status is the final HTTP status code, or 0 if no response arrived.
// Body errors take precedence over the status code, and the status code
// takes precedence over transport errors. A 2xx or 3xx status with a nil
// error is a success and yields model.ReasonNone.
func Classify(status int, err error) model.Reason {
	switch {
	case errors.Is(err, ErrNotText):
		return model.ReasonNotText
	case isMalformedPayload(err):
		return model.ReasonMalformedPayload
	case status >= 400 && status < 600:
		return model.ReasonHTTPStatus
	case err == nil:
		return model.ReasonNone
	case errors.Is(err, ErrTooManyRedirects):
		return model.ReasonTooManyRedirects
	case errors.Is(err, ErrNotAbsolute):
		return model.ReasonNotAbsolute
	case isConnectError(err):
		return model.ReasonCannotConnect
	case isTimeout(err):
		return model.ReasonTimeout
	default:
		return model.ReasonUnhandled
	}
}

// isMalformedPayload reports whether err means the body arrived corrupted.
func isMalformedPayload(err error) bool {
	if err == nil {
		return false
	}

	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, gzip.ErrHeader),
		errors.Is(err, gzip.ErrChecksum),
		errors.As(err, &corrupt):
		return true
	}

	// net/http reports chunked-encoding violations as plain errors.
	msg := rootCause(err).Error()
	return strings.Contains(msg, "chunked encoding") ||
		strings.Contains(msg, "chunk length") ||
		strings.Contains(msg, "chunked line")
}

// rootCause returns the innermost error of a single-error chain, so that
// messages are matched without the URL text added by wrappers.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// isConnectError reports whether err means no usable connection to the
// proxy or the target could be established or kept.
func isConnectError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		// A read that hit its deadline is a timeout, everything else on
		// the socket (dial, proxy handshake, reset) is a connect failure.
		return !(opErr.Op == "read" && opErr.Timeout())
	}

	// The peer closed the connection before sending a response.
	return errors.Is(err, io.EOF)
}

// isTimeout walks the whole chain: *url.Error only reports a timeout when
// its direct cause does, and net/http wraps read errors with fmt.Errorf.
func isTimeout(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if netErr, ok := e.(net.Error); ok && netErr.Timeout() {
			return true
		}
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
