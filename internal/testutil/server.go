package testutil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// ReleaseServer serves fixture archives with HEAD and Range support and
// records every request it sees.
type ReleaseServer struct {
	*httptest.Server

	mu       sync.Mutex
	assets   map[string][]byte
	requests []*http.Request
	noHead   bool
	noRange  bool
}

// NewReleaseServer starts a server that is closed when the test ends.
func NewReleaseServer(t *testing.T) *ReleaseServer {
	t.Helper()

	s := &ReleaseServer{assets: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Add publishes data at path (e.g. "/foundry-rs/foundry/releases/download/v1/x.tar.gz").
func (s *ReleaseServer) Add(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[path] = data
}

// RejectHead makes HEAD requests fail with 403, as signed URLs often do.
func (s *ReleaseServer) RejectHead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noHead = true
}

// IgnoreRange makes the server answer ranged requests with the full body.
func (s *ReleaseServer) IgnoreRange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noRange = true
}

// Requests returns the number of requests served so far.
func (s *ReleaseServer) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// RangeRequests returns the Range headers of every ranged request.
func (s *ReleaseServer) RangeRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ranges []string
	for _, r := range s.requests {
		if v := r.Header.Get("Range"); v != "" {
			ranges = append(ranges, v)
		}
	}
	return ranges
}

func (s *ReleaseServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	data, ok := s.assets[r.URL.Path]
	noHead, noRange := s.noHead, s.noRange
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if noHead && r.Method == http.MethodHead {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if noRange {
		r.Header.Del("Range")
	}

	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}
