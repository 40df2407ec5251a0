package fetch

import "errors"

var (
	// ErrNotText is returned when a response body cannot be decoded as text.
	ErrNotText = errors.New("content is not text data")

	// ErrNotAbsolute is returned when a URL has no scheme or host.
	ErrNotAbsolute = errors.New("URL should be absolute")

	// ErrTooManyRedirects is returned when a redirect chain exceeds the
	// client's limit.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrNoPage is returned when a Fetcher reports neither a page nor an error.
	ErrNoPage = errors.New("fetcher returned no page")
)
