package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoURLFile is returned when the site list path is empty.
	ErrNoURLFile = errors.New("no URL list file specified: use --file")

	// ErrNoProxyFile is returned when the proxy list path is empty.
	ErrNoProxyFile = errors.New("no proxy list file specified: use --proxy")

	// ErrNoDest is returned when the destination folder is empty.
	ErrNoDest = errors.New("no destination folder specified: use --dest")

	// ErrNoFailureLog is returned when the failure log path is empty.
	ErrNoFailureLog = errors.New("no failure log specified: use --bad-urls")

	// ErrInvalidPoolSize is returned for a negative connection ceiling.
	// Use 0 for no ceiling.
	ErrInvalidPoolSize = errors.New("invalid pool size: must be non-negative")

	// ErrInvalidTimeout is returned when the read timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConnectTimeout is returned for a negative connect timeout.
	ErrInvalidConnectTimeout = errors.New("invalid connect timeout: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the body limit is not positive.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be positive")

	// ErrInvalidMaxRedirects is returned for a negative redirect limit.
	ErrInvalidMaxRedirects = errors.New("invalid max redirects: must be non-negative")

	// ErrNoDBDir is returned when history is enabled without a directory.
	ErrNoDBDir = errors.New("no database directory specified: use --db-dir or --no-db")
)

// Input list errors.
var (
	// ErrNoURLs is returned when the site list contains no URL.
	ErrNoURLs = errors.New("URL list is empty")

	// ErrNoProxies is returned when the proxy list contains no address.
	ErrNoProxies = errors.New("proxy list is empty")

	// ErrInvalidEnv is returned when a PAGEFETCH_* variable cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment variable")
)
