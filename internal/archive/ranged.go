package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/ZebulonRouseFrantzich/foundryup/internal/download"
)

// tailSize is how much of the end of a zip archive is fetched in one request.
// It covers the end-of-central-directory search window and, for release
// archives, the whole directory.
const tailSize = 128 << 10

// RangeSource is a random-access view of a remote file built on ranged GETs.
type RangeSource struct {
	client  *download.Client
	url     string
	maxSize int64

	mu   sync.Mutex
	size int64
}

// NewRangeSource creates a source for url. Sizes above maxSize are rejected.
func NewRangeSource(client *download.Client, url string, maxSize int64) *RangeSource {
	return &RangeSource{client: client, url: url, maxSize: maxSize, size: -1}
}

// Size returns the total length of the remote file. It tries HEAD first and
// falls back to a one-byte ranged GET, since signed download URLs often
// reject HEAD.
func (s *RangeSource) Size(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size >= 0 {
		return s.size, nil
	}

	size, headErr := s.headSize(ctx)
	if headErr != nil {
		var err error
		size, err = s.probeSize(ctx)
		if err != nil {
			return 0, fmt.Errorf("determine archive size: %w", multierr.Combine(headErr, err))
		}
	}

	if size > s.maxSize {
		return 0, fmt.Errorf("%w: %d bytes reported, limit %d", ErrArchiveTooLarge, size, s.maxSize)
	}
	s.size = size
	return size, nil
}

func (s *RangeSource) headSize(ctx context.Context) (int64, error) {
	stream, resp, err := s.client.Open(ctx, download.Request{URL: s.url, Method: http.MethodHead})
	if err != nil {
		return 0, err
	}
	stream.Close()

	if resp.ContentLength <= 0 {
		return 0, errors.New("HEAD response has no content length")
	}
	return resp.ContentLength, nil
}

func (s *RangeSource) probeSize(ctx context.Context) (int64, error) {
	header := http.Header{}
	header.Set("Range", "bytes=0-0")
	stream, resp, err := s.client.Open(ctx, download.Request{URL: s.url, Header: header})
	if err != nil {
		return 0, err
	}
	stream.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("server ignored range request (status %d)", resp.StatusCode)
	}
	_, _, total, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Stream returns the bytes [offset, offset+length) of the remote file with a
// single ranged GET.
func (s *RangeSource) Stream(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range offset=%d length=%d", offset, length)
	}
	if length == 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}

	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	stream, resp, err := s.client.Open(ctx, download.Request{URL: s.url, Header: header})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPartialContent {
		stream.Close()
		return nil, fmt.Errorf("server ignored range request (status %d)", resp.StatusCode)
	}
	start, _, _, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		stream.Close()
		return nil, err
	}
	if start != offset {
		stream.Close()
		return nil, fmt.Errorf("server returned range starting at %d, want %d", start, offset)
	}

	return &rangeBody{Reader: io.LimitReader(stream, length), stream: stream}, nil
}

type rangeBody struct {
	io.Reader
	stream *download.Stream
}

func (b *rangeBody) Close() error {
	return b.stream.Close()
}

// ReaderAt adapts the source to io.ReaderAt for zip directory parsing. Reads
// that fall inside the archive's tail are served from one cached request.
func (s *RangeSource) ReaderAt(ctx context.Context) (io.ReaderAt, error) {
	size, err := s.Size(ctx)
	if err != nil {
		return nil, err
	}
	return &rangeReaderAt{ctx: ctx, src: s, size: size}, nil
}

type rangeReaderAt struct {
	ctx  context.Context
	src  *RangeSource
	size int64

	mu      sync.Mutex
	tail    []byte
	tailOff int64
}

func (r *rangeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	n := int64(len(p))
	if off+n > r.size {
		n = r.size - off
	}

	tail, tailOff, err := r.loadTail(off)
	if err != nil {
		return 0, err
	}

	if tail != nil && off >= tailOff {
		copy(p[:n], tail[off-tailOff:])
	} else {
		body, err := r.src.Stream(r.ctx, off, n)
		if err != nil {
			return 0, err
		}
		_, err = io.ReadFull(body, p[:n])
		body.Close()
		if err != nil {
			return 0, fmt.Errorf("read range at %d: %w", off, err)
		}
	}

	if n < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// loadTail fetches the trailing block the first time a read touches it.
func (r *rangeReaderAt) loadTail(off int64) ([]byte, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tail != nil {
		return r.tail, r.tailOff, nil
	}

	tailOff := r.size - tailSize
	if tailOff < 0 {
		tailOff = 0
	}
	if off < tailOff {
		return nil, 0, nil
	}

	body, err := r.src.Stream(r.ctx, tailOff, r.size-tailOff)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch archive directory: %w", err)
	}
	defer body.Close()

	buf := make([]byte, r.size-tailOff)
	if _, err := io.ReadFull(body, buf); err != nil {
		return nil, 0, fmt.Errorf("fetch archive directory: %w", err)
	}
	r.tail, r.tailOff = buf, tailOff
	return r.tail, r.tailOff, nil
}

// parseContentRange parses "bytes start-end/total".
func parseContentRange(value string) (start, end, total int64, err error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	span, totalStr, ok := strings.Cut(spec, "/")
	if !ok || totalStr == "*" {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	startStr, endStr, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}

	if start, err = strconv.ParseInt(startStr, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q: %w", value, err)
	}
	if end, err = strconv.ParseInt(endStr, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q: %w", value, err)
	}
	if total, err = strconv.ParseInt(totalStr, 10, 64); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q: %w", value, err)
	}
	if start > end || end >= total {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return start, end, total, nil
}
