package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "pagefetch"

	// DefaultURLFile is the ';'-delimited list of sites to fetch.
	DefaultURLFile = "sites.csv"

	// DefaultDest is the folder saved pages are written to.
	DefaultDest = "downloaded"

	// DefaultPoolSize is the connection ceiling. 0 removes the ceiling;
	// the number of proxies still bounds concurrent fetches.
	DefaultPoolSize = 100

	// DefaultProxyFile lists one proxy address per line.
	DefaultProxyFile = "proxies.txt"

	// DefaultTimeout bounds every single socket read, not the whole request.
	DefaultTimeout = 15 * time.Second

	// DefaultConnectTimeout of zero leaves the dial unbounded.
	DefaultConnectTimeout = time.Duration(0)

	// DefaultBadURLsFile is the failure log, truncated at the start of a run.
	DefaultBadURLsFile = "bad_urls.log"

	// DefaultLogFile is the rotating debug log.
	DefaultLogFile = "pagefetch.log"

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

	// DefaultMaxBodySize limits the response body read per page.
	// Longer bodies are truncated.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultMaxRedirects is the longest redirect chain followed.
	DefaultMaxRedirects = 10
)

// Config holds all options of a download run. It is populated from
// defaults, the config file, the environment and CLI flags, in that order
// of increasing precedence, and passed down explicitly.
type Config struct {
	// URLFile is the path of the site list.
	URLFile string

	// Dest is the root folder for saved pages.
	Dest string

	// PoolSize is the connection ceiling. 0 means no ceiling.
	PoolSize int

	// ProxyFile is the path of the proxy list.
	ProxyFile string

	// Timeout is the per-read socket timeout.
	Timeout time.Duration

	// ConnectTimeout bounds the dial to a proxy. 0 means no limit.
	ConnectTimeout time.Duration

	// BadURLsFile is the failure log path.
	BadURLsFile string

	// LogFile is the rotating debug log path. Empty disables the file log.
	LogFile string

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// MaxBodySize is the maximum number of body bytes read per page.
	MaxBodySize int64

	// MaxRedirects is the redirect limit per request.
	MaxRedirects int

	// ReportFile is the Markdown run summary path. Empty disables it.
	ReportFile string

	// MetricsAddr is the Prometheus listen address. Empty disables it.
	MetricsAddr string

	// DBDir is the directory of the run history database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB records the run in the history database.
	SaveToDB bool

	// ShowProgress draws a progress bar on stderr.
	ShowProgress bool

	// Verbose lowers the console log level to debug.
	Verbose bool

	// ConfigFilePath is the YAML config file. If empty, .pagefetch is
	// searched in the current directory and then in the home directory.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		URLFile:        DefaultURLFile,
		Dest:           DefaultDest,
		PoolSize:       DefaultPoolSize,
		ProxyFile:      DefaultProxyFile,
		Timeout:        DefaultTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		BadURLsFile:    DefaultBadURLsFile,
		LogFile:        DefaultLogFile,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		MaxRedirects:   DefaultMaxRedirects,
		DBDir:          XDGDataDir(),
		SaveToDB:       true,
		ShowProgress:   true,
	}
}

// XDGDataDir returns the XDG data directory for pagefetch.
// On Linux: ~/.local/share/pagefetch
// On macOS: ~/Library/Application Support/pagefetch
// On Windows: %LOCALAPPDATA%\pagefetch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for pagefetch.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
// It is called once after all sources are merged, before any file is
// touched.
func (c *Config) Validate() error {
	switch {
	case c.URLFile == "":
		return ErrNoURLFile
	case c.ProxyFile == "":
		return ErrNoProxyFile
	case c.Dest == "":
		return ErrNoDest
	case c.BadURLsFile == "":
		return ErrNoFailureLog
	case c.PoolSize < 0:
		return ErrInvalidPoolSize
	case c.Timeout <= 0:
		return ErrInvalidTimeout
	case c.ConnectTimeout < 0:
		return ErrInvalidConnectTimeout
	case c.MaxBodySize <= 0:
		return ErrInvalidMaxBodySize
	case c.MaxRedirects < 0:
		return ErrInvalidMaxRedirects
	case c.SaveToDB && c.DBDir == "":
		return ErrNoDBDir
	}
	return nil
}
