package testutil

import (
	"bytes"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Server serves an archive over HTTP and records every request.
type Server struct {
	*httptest.Server

	content io.ReaderAt
	size    int64

	mu          sync.Mutex
	requests    []*nethttp.Request
	bytesServed int64
	noRanges    bool
	mutate      func([]byte, int64)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithoutRanges makes the server ignore Range headers and always answer 200
// with the full body.
func WithoutRanges() ServerOption {
	return func(s *Server) {
		s.noRanges = true
	}
}

// WithMutation lets a test alter bytes as they are served. fn receives each
// read buffer and the archive offset it starts at.
func WithMutation(fn func(p []byte, off int64)) ServerOption {
	return func(s *Server) {
		s.mutate = fn
	}
}

// NewServer serves content of the given size at /archive.zip.
func NewServer(tb testing.TB, content io.ReaderAt, size int64, opts ...ServerOption) *Server {
	tb.Helper()

	s := &Server{content: content, size: size}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(nethttp.HandlerFunc(s.serve))
	tb.Cleanup(s.Close)
	return s
}

// NewBytesServer serves data at /archive.zip.
func NewBytesServer(tb testing.TB, data []byte, opts ...ServerOption) *Server {
	tb.Helper()
	return NewServer(tb, bytes.NewReader(data), int64(len(data)), opts...)
}

// ArchiveURL returns the URL of the served archive.
func (s *Server) ArchiveURL() string {
	return s.URL + "/archive.zip"
}

// Requests returns the number of requests received.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// RangeHeaders returns the Range header of every GET request received.
func (s *Server) RangeHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.requests {
		if r.Method == nethttp.MethodGet {
			out = append(out, r.Header.Get("Range"))
		}
	}
	return out
}

// Headers returns the headers of every request received.
func (s *Server) Headers() []nethttp.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]nethttp.Header, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Header
	}
	return out
}

// BytesServed returns the number of body bytes written so far.
func (s *Server) BytesServed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesServed
}

// Reset clears the recorded requests and byte count.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.bytesServed = 0
}

func (s *Server) serve(w nethttp.ResponseWriter, r *nethttp.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	s.mu.Unlock()

	if r.URL.Path != "/archive.zip" {
		nethttp.NotFound(w, r)
		return
	}
	if s.noRanges {
		r.Header.Del("Range")
	}

	body := io.NewSectionReader(&countingReaderAt{s: s}, 0, s.size)
	nethttp.ServeContent(w, r, "archive.zip", time.Time{}, body)
}

// countingReaderAt counts bytes read from the content on behalf of responses.
type countingReaderAt struct {
	s *Server
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.s.content.ReadAt(p, off)
	if c.s.mutate != nil {
		c.s.mutate(p[:n], off)
	}
	c.s.mu.Lock()
	c.s.bytesServed += int64(n)
	c.s.mu.Unlock()
	return n, err
}
