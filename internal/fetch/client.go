package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nao1215/pagefetch/internal/model"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/proxy"
)

// Client defaults.
const (
	DefaultReadTimeout  = 15 * time.Second
	DefaultMaxRedirects = 10
	DefaultMaxBodySize  = 10 * 1024 * 1024 // 10MB
	DefaultUserAgent    = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"
)

// sniffLen is the number of leading bytes inspected for binary content.
const sniffLen = 512

// Page is a fetched front page.
type Page struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// StatusCode is the final HTTP status code.
	StatusCode int

	// ContentType is the Content-Type response header.
	ContentType string

	// HTML is the decoded response body. It is empty when decoding failed.
	HTML string

	// Truncated reports whether the body was longer than the size cap.
	Truncated bool
}

// Client performs proxy-routed GET requests.
//
// One Client is shared by all workers. The proxy is chosen per request, so
// keep-alive connections are disabled: a pooled connection belongs to the
// proxy that opened it and must not be handed to a request leasing another.
type Client struct {
	httpClient *http.Client

	// readTimeout bounds every single read on the connection.
	// Zero disables the deadline.
	readTimeout time.Duration

	// connectTimeout bounds the TCP dial to the proxy (or target).
	// Zero means no limit.
	connectTimeout time.Duration

	userAgent    string
	maxBodySize  int64
	maxRedirects int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithReadTimeout sets the per-read timeout.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.readTimeout = d
	}
}

// WithConnectTimeout sets the dial timeout. Zero means no limit.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.connectTimeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxBodySize sets the number of body bytes read per page.
// Longer bodies are truncated at the last complete character.
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithMaxRedirects sets the redirect limit.
func WithMaxRedirects(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// NewClient creates a Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		readTimeout:  DefaultReadTimeout,
		userAgent:    DefaultUserAgent,
		maxBodySize:  DefaultMaxBodySize,
		maxRedirects: DefaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		Proxy:             proxyFromRequest,
		DialContext:       c.dialContext,
		DisableKeepAlives: true,
	}

	c.httpClient = &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= c.maxRedirects {
				return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, len(via))
			}
			return nil
		},
	}
	return c
}

// Fetch GETs rawURL through the proxy at proxyAddr.
//
// A non-nil Page is returned whenever a response arrived, even if reading
// or decoding its body failed afterwards, so that callers can see the
// status code alongside the error.
func (c *Client) Fetch(ctx context.Context, rawURL, proxyAddr string) (*Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrNotAbsolute, rawURL)
	}

	proxyURL, err := model.ParseProxy(proxyAddr)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(withProxy(ctx, proxyURL), http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAbsolute, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.5")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	page := &Page{
		URL:         rawURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	// One byte past the cap tells a truncated body from one that fits.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return page, err
	}
	if int64(len(body)) > c.maxBodySize {
		body = body[:c.maxBodySize]
		page.Truncated = true
	}

	text, err := decodeText(body, page.ContentType, page.Truncated)
	if err != nil {
		return page, err
	}
	page.HTML = text
	return page, nil
}

// DecodeText converts a response body to a UTF-8 string.
// The encoding is taken from contentType, a BOM, or a <meta> declaration.
// Binary payloads and bodies that do not match their declared UTF-8
// encoding yield ErrNotText.
func DecodeText(body []byte, contentType string) (string, error) {
	return decodeText(body, contentType, false)
}

// decodeText is DecodeText for a body that may have been cut at the size
// cap. A UTF-8 body cut inside a character loses the partial character.
func decodeText(body []byte, contentType string, truncated bool) (string, error) {
	if looksBinary(body) {
		return "", ErrNotText
	}

	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		if truncated {
			body = trimPartialRune(body)
		}
		if !utf8.Valid(body) {
			return "", fmt.Errorf("%w: invalid utf-8", ErrNotText)
		}
		return string(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))), nil
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrNotText, name, err)
	}
	return string(decoded), nil
}

// trimPartialRune drops an incomplete UTF-8 sequence from the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if !utf8.RuneStart(c) {
			continue
		}
		if c >= utf8.RuneSelf && !utf8.FullRune(b[len(b)-i:]) {
			return b[:len(b)-i]
		}
		return b
	}
	return b
}

// looksBinary reports whether body is evidently not text.
func looksBinary(body []byte) bool {
	head := body
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	mime := http.DetectContentType(head)
	if strings.Contains(mime, "charset=utf-16") {
		// UTF-16 bodies carry NUL bytes but are recognized by their BOM.
		return false
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}

	switch {
	case strings.HasPrefix(mime, "text/"):
		return false
	case strings.HasPrefix(mime, "image/"),
		strings.HasPrefix(mime, "audio/"),
		strings.HasPrefix(mime, "video/"),
		strings.HasPrefix(mime, "font/"):
		return true
	}

	switch mime {
	case "application/octet-stream",
		"application/pdf",
		"application/zip",
		"application/x-gzip",
		"application/x-rar-compressed",
		"application/wasm",
		"application/ogg",
		"application/vnd.ms-fontobject":
		return true
	}
	return false
}

type proxyContextKey struct{}

// withProxy attaches the leased proxy to a request context.
func withProxy(ctx context.Context, u *url.URL) context.Context {
	return context.WithValue(ctx, proxyContextKey{}, u)
}

func proxyFromContext(ctx context.Context) *url.URL {
	u, _ := ctx.Value(proxyContextKey{}).(*url.URL)
	return u
}

// proxyFromRequest is the Transport.Proxy hook for HTTP(S) proxies.
// SOCKS5 proxies are handled in dialContext instead.
func proxyFromRequest(req *http.Request) (*url.URL, error) {
	u := proxyFromContext(req.Context())
	if u == nil || u.Scheme == "socks5" {
		return nil, nil
	}
	return u, nil
}

// dialContext opens the connection for one request and applies the
// per-read deadline to it.
func (c *Client) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: c.connectTimeout}

	var (
		conn net.Conn
		err  error
	)
	if u := proxyFromContext(ctx); u != nil && u.Scheme == "socks5" {
		conn, err = dialSOCKS5(ctx, d, u, network, addr)
	} else {
		conn, err = d.DialContext(ctx, network, addr)
	}
	if err != nil {
		return nil, err
	}
	return newDeadlineConn(conn, c.readTimeout), nil
}

// dialSOCKS5 connects to addr through the SOCKS5 proxy u.
func dialSOCKS5(ctx context.Context, forward *net.Dialer, u *url.URL, network, addr string) (net.Conn, error) {
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}

	dialer, err := proxy.SOCKS5("tcp", u.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return dialer.Dial(network, addr)
}

// deadlineConn resets the read deadline before every Read, so the timeout
// bounds each read rather than the whole response.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func newDeadlineConn(conn net.Conn, timeout time.Duration) net.Conn {
	if timeout <= 0 {
		return conn
	}
	return &deadlineConn{Conn: conn, timeout: timeout}
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}
