package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// Request describes a download. Method defaults to GET.
type Request struct {
	URL    string
	Method string
	Header http.Header
}

// Response is the metadata of the final hop.
type Response struct {
	URL           string
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Redirects     int
}

// Stream is a single-subscriber byte stream over an HTTP response body.
type Stream struct {
	ready chan struct{}

	mu     sync.Mutex
	resp   *Response
	err    error
	body   io.ReadCloser
	closed bool

	cancel context.CancelFunc
}

// Start begins the request in the background and returns immediately. The
// outcome is observed through Response, Read or Close.
func (c *Client) Start(ctx context.Context, req Request) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ready:  make(chan struct{}),
		cancel: cancel,
	}
	go c.run(ctx, s, req)
	return s
}

// Open starts the request and waits for its outcome.
func (c *Client) Open(ctx context.Context, req Request) (*Stream, *Response, error) {
	s := c.Start(ctx, req)
	resp, err := s.Response()
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return s, resp, nil
}

func (c *Client) run(ctx context.Context, s *Stream, req Request) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	current := req.URL
	for redirects := 0; ; redirects++ {
		resp, err := c.do(ctx, method, current, req.Header, redirects > 0 && !sameHost(req.URL, current))
		if err != nil {
			s.resolve(nil, nil, err)
			return
		}

		location := resp.Header.Get("Location")
		if isRedirect(resp.StatusCode) && location != "" {
			drain(resp.Body)

			if redirects >= c.maxRedirects {
				s.resolve(nil, nil, &NetworkError{URL: current, Err: ErrTooManyRedirects})
				return
			}

			next, err := resolveLocation(current, location)
			if err != nil {
				s.resolve(nil, nil, &NetworkError{URL: current, Err: err})
				return
			}

			c.log.WithFields(map[string]any{
				"from":   current,
				"to":     next,
				"status": resp.StatusCode,
				"hop":    redirects + 1,
			}).Debug("Following redirect")

			if resp.StatusCode == http.StatusSeeOther && method != http.MethodHead {
				method = http.MethodGet
			}
			current = next
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			drain(resp.Body)
			s.resolve(nil, nil, &NetworkError{
				URL:        current,
				StatusCode: resp.StatusCode,
				Status:     http.StatusText(resp.StatusCode),
			})
			return
		}

		s.resolve(&Response{
			URL:           current,
			StatusCode:    resp.StatusCode,
			Header:        resp.Header,
			ContentLength: resp.ContentLength,
			Redirects:     redirects,
		}, resp.Body, nil)
		return
	}
}

func (c *Client) do(ctx context.Context, method, rawURL string, header http.Header, crossHost bool) (*http.Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: fmt.Errorf("parse url: %w", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &NetworkError{URL: rawURL, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range header {
		req.Header[k] = append([]string(nil), v...)
	}
	if crossHost {
		req.Header.Del("Authorization")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: rawURL, Err: err}
	}
	return resp, nil
}

// resolve records the single outcome of the stream. Later calls are ignored.
func (s *Stream) resolve(resp *Response, body io.ReadCloser, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.ready:
		if body != nil {
			body.Close()
		}
		return
	default:
	}

	if s.closed && body != nil {
		body.Close()
		body = nil
		if err == nil {
			resp, err = nil, context.Canceled
		}
	}

	s.resp, s.body, s.err = resp, body, err
	close(s.ready)
}

// Response blocks until the stream resolves and returns the final-hop
// metadata or the error that ended the request.
func (s *Stream) Response() (*Response, error) {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp, s.err
}

// Read reads body bytes, waiting for the response first.
func (s *Stream) Read(p []byte) (int, error) {
	<-s.ready
	s.mu.Lock()
	body, err, closed := s.body, s.err, s.closed
	s.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if closed || body == nil {
		return 0, io.ErrClosedPipe
	}
	return body.Read(p)
}

// Close aborts the request or tears down the connection of an open body.
// It is safe to call more than once.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	body := s.body
	s.mu.Unlock()

	s.cancel()
	if body != nil {
		return body.Close()
	}
	return nil
}

func isRedirect(code int) bool {
	return code >= 300 && code <= 399
}

func resolveLocation(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	l, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse redirect location: %w", err)
	}
	return b.ResolveReference(l).String(), nil
}

func sameHost(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.Host == ub.Host
}

// drain discards a bounded amount of an unused body so the connection can be
// reused, then closes it.
func drain(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, 4<<10)
	body.Close()
}
