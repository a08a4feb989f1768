// Package download opens HTTP(S) byte streams for release archives.
//
// A Stream resolves exactly once: either with response metadata, after which
// the body can be read, or with an error. Redirects are followed internally up
// to a fixed bound, so callers observe a single outcome no matter how many
// hops the request took.
package download

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/logger"
)

const (
	// DefaultMaxRedirects is the number of redirects followed before giving up
	DefaultMaxRedirects = 5
	// DefaultHeaderTimeout bounds the wait for response headers on each hop
	DefaultHeaderTimeout = 30 * time.Second
	// DefaultDialTimeout bounds TCP connection setup
	DefaultDialTimeout = 30 * time.Second
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "foundryup/1.0"
)

var (
	// ErrTooManyRedirects is returned when a redirect chain exceeds the bound.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// NetworkError describes a failed request: a bad status code, a redirect
// chain that was too long, or a transport failure.
type NetworkError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("request %s failed with status %d: %s", e.URL, e.StatusCode, e.Status)
	}
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Client issues download requests. It is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	maxRedirects int
	userAgent    string
	log          *logrus.Entry
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRedirects sets the redirect bound. Zero disables redirects.
func WithMaxRedirects(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithHeaderTimeout sets how long each hop may wait for response headers.
func WithHeaderTimeout(d time.Duration) Option {
	return func(c *Client) {
		if t, ok := c.httpClient.Transport.(*http.Transport); ok && d > 0 {
			t.ResponseHeaderTimeout = d
		}
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithLogger sets the log entry used for per-hop debug output.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a client with explicit dial, TLS and header timeouts.
// No whole-request timeout is set; large bodies are bounded by the caller's
// context.
func NewClient(opts ...Option) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: DefaultHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects are followed by Stream so the hop count is ours.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRedirects: DefaultMaxRedirects,
		userAgent:    DefaultUserAgent,
		log:          logger.New("download").Entry(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxRedirects reports the configured redirect bound.
func (c *Client) MaxRedirects() int {
	return c.maxRedirects
}
