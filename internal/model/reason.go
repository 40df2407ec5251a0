package model

// Reason classifies why a URL could not be fetched.
// The zero value ReasonNone means the fetch succeeded.
type Reason int

const (
	// ReasonNone indicates a successful fetch.
	ReasonNone Reason = iota

	// ReasonNotText indicates the response body could not be decoded as text.
	ReasonNotText

	// ReasonMalformedPayload indicates transport-level payload corruption:
	// bad compression, malformed chunked encoding, or a body shorter than
	// its Content-Length.
	ReasonMalformedPayload

	// ReasonHTTPStatus indicates a response status in the [400, 600) range.
	ReasonHTTPStatus

	// ReasonCannotConnect indicates the connection to the host (or to the
	// proxy in front of it) could not be established or was dropped.
	ReasonCannotConnect

	// ReasonTooManyRedirects indicates the redirect chain exceeded the limit.
	ReasonTooManyRedirects

	// ReasonTimeout indicates a socket read exceeded the per-read timeout.
	ReasonTimeout

	// ReasonNotAbsolute indicates the URL is not absolute or well-formed.
	ReasonNotAbsolute

	// ReasonUnhandled covers every failure that fits no other reason.
	ReasonUnhandled
)

// FailureReasons lists every failure reason in classification priority order.
var FailureReasons = []Reason{
	ReasonNotText,
	ReasonMalformedPayload,
	ReasonHTTPStatus,
	ReasonCannotConnect,
	ReasonTooManyRedirects,
	ReasonTimeout,
	ReasonNotAbsolute,
	ReasonUnhandled,
}

// String returns the text written to the failure log for this reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonNotText:
		return "content is not text data"
	case ReasonMalformedPayload:
		return "invalid/malformed payload"
	case ReasonHTTPStatus:
		return "HTTP_STATUS_CODE"
	case ReasonCannotConnect:
		return "cannot connect to host"
	case ReasonTooManyRedirects:
		return "too many redirects"
	case ReasonTimeout:
		return "timeout error"
	case ReasonNotAbsolute:
		return "URL should be absolute"
	case ReasonUnhandled:
		return "unhandled exception"
	default:
		return "unknown"
	}
}

// Label returns a short identifier suitable for metric labels and
// database columns.
func (r Reason) Label() string {
	switch r {
	case ReasonNone:
		return "ok"
	case ReasonNotText:
		return "not_text"
	case ReasonMalformedPayload:
		return "malformed_payload"
	case ReasonHTTPStatus:
		return "http_status"
	case ReasonCannotConnect:
		return "cannot_connect"
	case ReasonTooManyRedirects:
		return "too_many_redirects"
	case ReasonTimeout:
		return "timeout"
	case ReasonNotAbsolute:
		return "not_absolute"
	case ReasonUnhandled:
		return "unhandled"
	default:
		return "unknown"
	}
}

// ReasonFromLabel is the inverse of Reason.Label.
// Unknown labels map to ReasonUnhandled.
func ReasonFromLabel(label string) Reason {
	if label == ReasonNone.Label() {
		return ReasonNone
	}
	for _, r := range FailureReasons {
		if r.Label() == label {
			return r
		}
	}
	return ReasonUnhandled
}
