package model

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrInvalidProxyAddress is returned when a proxy address is not in
	// [scheme://][user:pass@]host:port form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected [scheme://][user:pass@]host:port")

	// ErrUnsupportedProxyScheme is returned for proxy schemes other than
	// http, https and socks5.
	ErrUnsupportedProxyScheme = errors.New("unsupported proxy scheme: expected http, https or socks5")

	// ErrNoHost is returned when a URL has no host component to store
	// its page under.
	ErrNoHost = errors.New("URL has no host component")

	// ErrUnsafeHost is returned when a URL host would escape the
	// destination directory.
	ErrUnsafeHost = errors.New("URL host is not a safe directory name")
)

// NormalizeURL trims surrounding whitespace and prefixes bare hosts with
// "http://". Addresses that already start with http:// or https:// are
// returned trimmed but otherwise unchanged.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "http://" + s
}

// pageNameReplacer removes the scheme and turns path separators into dots.
var pageNameReplacer = strings.NewReplacer(
	"http://", "",
	"https://", "",
	"/", ".",
)

// PagePaths derives where the page for rawURL is stored under dest.
// The host component (including any port) becomes a subdirectory and the
// file base name is the URL with its scheme removed and every "/"
// replaced by ".". Callers append ".html" and ".txt" to base.
//
// For example "https://example.com/a/b" yields dir "<dest>/example.com"
// and base "<dest>/example.com/example.com.a.b".
func PagePaths(dest, rawURL string) (dir, base string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", ErrNoHost
	}
	if !isSafeName(u.Host) {
		return "", "", fmt.Errorf("%w: %q", ErrUnsafeHost, u.Host)
	}

	name := pageNameReplacer.Replace(rawURL)
	if !isSafeName(name) {
		return "", "", fmt.Errorf("%w: %q", ErrUnsafeHost, name)
	}

	dir = filepath.Join(dest, u.Host)
	return dir, filepath.Join(dir, name), nil
}

// isSafeName rejects names that filepath.Join would resolve outside the
// parent directory.
func isSafeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

// ParseProxy parses a proxy list entry into a URL.
// A bare "host:port" is treated as an HTTP proxy. Supported schemes are
// http, https and socks5 (socks5h is accepted as an alias).
func ParseProxy(addr string) (*url.URL, error) {
	s := strings.TrimSpace(addr)
	if s == "" {
		return nil, ErrInvalidProxyAddress
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProxyAddress, err)
	}

	switch u.Scheme {
	case "http", "https", "socks5":
	case "socks5h":
		u.Scheme = "socks5"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProxyScheme, u.Scheme)
	}

	if !isValidHostPort(u.Host) || (u.Path != "" && u.Path != "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, addr)
	}
	return u, nil
}

// isValidHostPort checks for a non-empty host and a port in 1-65535.
func isValidHostPort(hostport string) bool {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}
