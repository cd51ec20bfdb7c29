// Package http provides random access to a remote archive through HTTP range
// requests.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/meigma/partialzip/internal/ziptype"
)

// DefaultRetries is the number of times a transient failure is retried.
const DefaultRetries = 3

// Source implements ranged reads of one remote resource. A Source is
// scoped to a single List or Download call and is safe for concurrent use.
type Source struct {
	url          *url.URL
	client       *nethttp.Client
	headers      nethttp.Header
	user         *url.Userinfo
	userAgent    string
	logger       *slog.Logger
	retries      int
	minBackoff   time.Duration
	maxBackoff   time.Duration
	size         int64
	etag         string
	lastModified string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithBasicAuth sends HTTP basic credentials on each request.
func WithBasicAuth(username, password string) Option {
	return func(s *Source) {
		s.user = url.UserPassword(username, password)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Source) {
		s.userAgent = ua
	}
}

// WithLogger sets the logger for request diagnostics.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithRetries sets how many times a transient failure is retried.
// Zero disables retries.
func WithRetries(n int) Option {
	return func(s *Source) {
		s.retries = max(n, 0)
	}
}

// WithBackoff sets the initial and maximum delay between retries.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(s *Source) {
		s.minBackoff = initial
		s.maxBackoff = maxDelay
	}
}

// NewSource creates a Source for rawURL and probes the remote size.
// Supported schemes are http, https, and file.
func NewSource(ctx context.Context, rawURL string, opts ...Option) (*Source, error) {
	u, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	s := &Source{
		url:        u,
		retries:    DefaultRetries,
		minBackoff: 200 * time.Millisecond,
		maxBackoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = NewClient(ClientConfig{})
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	if err := s.fetchMetadata(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseURL validates rawURL and returns it parsed.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ziptype.ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: %q has no host", ziptype.ErrInvalidURL, rawURL)
		}
	case "file":
		if u.Path == "" {
			return nil, fmt.Errorf("%w: %q has no path", ziptype.ErrInvalidURL, rawURL)
		}
	case "":
		return nil, fmt.Errorf("%w: %q has no scheme", ziptype.ErrInvalidURL, rawURL)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ziptype.ErrInvalidURL, u.Scheme)
	}
	return u, nil
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// URL returns the remote location with any password redacted.
func (s *Source) URL() string {
	return s.url.Redacted()
}

// Fetch returns exactly length bytes starting at off. Transient failures are
// retried; a response that ends early is ziptype.ErrShortRead.
func (s *Source) Fetch(ctx context.Context, off, length int64) ([]byte, error) {
	if err := s.checkRange(off, length); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}

	var out []byte
	err := s.retry(ctx, "fetch", func() error {
		resp, err := s.rangeRequest(ctx, off, length)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		buf := make([]byte, length)
		n, err := io.ReadFull(resp.Body, buf)
		if err != nil {
			return s.bodyError(ctx, off, length, int64(n), err)
		}
		out = buf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadRange returns a reader over [off, off+length). Establishing the
// response is retried; the body is not resumed after a failure.
func (s *Source) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	if err := s.checkRange(off, length); err != nil {
		return nil, err
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	var resp *nethttp.Response
	err := s.retry(ctx, "read range", func() error {
		r, err := s.rangeRequest(ctx, off, length)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rangeReadCloser{
		ctx:    ctx,
		src:    s,
		off:    off,
		length: length,
		body:   resp.Body,
		reader: io.LimitReader(resp.Body, length),
	}, nil
}

// ProbeRangeSupport issues a one byte range request and reports whether the
// server answered with partial content.
func (s *Source) ProbeRangeSupport(ctx context.Context) (bool, error) {
	var supported bool
	err := s.retry(ctx, "probe", func() error {
		resp, err := s.do(ctx, nethttp.MethodGet, "bytes=0-0")
		if err != nil {
			return err
		}
		defer drain(resp.Body)

		switch resp.StatusCode {
		case nethttp.StatusPartialContent:
			supported = true
			return nil
		case nethttp.StatusOK:
			supported = false
			return nil
		default:
			return s.statusError(resp)
		}
	})
	return supported, err
}

func (s *Source) checkRange(off, length int64) error {
	if off < 0 || length < 0 {
		return fmt.Errorf("read range [%d, +%d): negative offset or length", off, length)
	}
	if length > s.size-off {
		return fmt.Errorf("%w: range [%d, +%d) exceeds size %d", ziptype.ErrShortRead, off, length, s.size)
	}
	return nil
}

// rangeRequest sends a GET for [off, off+length) and validates that the
// response covers exactly that range. On success the caller owns resp.Body.
func (s *Source) rangeRequest(ctx context.Context, off, length int64) (*nethttp.Response, error) {
	last := off + length - 1
	resp, err := s.do(ctx, nethttp.MethodGet, fmt.Sprintf("bytes=%d-%d", off, last))
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		drain(resp.Body)
		return nil, fmt.Errorf("%w: %s answered a range request with the full body",
			ziptype.ErrRangeNotSupported, s.url.Redacted())
	case nethttp.StatusRequestedRangeNotSatisfiable:
		drain(resp.Body)
		return nil, fmt.Errorf("%w: range [%d, %d] not satisfiable", ziptype.ErrShortRead, off, last)
	default:
		drain(resp.Body)
		return nil, s.statusError(resp)
	}

	first, gotLast, _, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		drain(resp.Body)
		return nil, fmt.Errorf("%w: %v", ziptype.ErrRangeNotSupported, err)
	}
	if first != off {
		drain(resp.Body)
		return nil, fmt.Errorf("%w: requested range starting at %d, got %d-%d",
			ziptype.ErrRangeNotSupported, off, first, gotLast)
	}
	if gotLast < last {
		drain(resp.Body)
		return nil, fmt.Errorf("%w: requested [%d, %d], got [%d, %d]",
			ziptype.ErrShortRead, off, last, first, gotLast)
	}
	return resp, nil
}

// do builds and sends one request. Network failures come back retryable.
func (s *Source) do(ctx context.Context, method, rangeHeader string) (*nethttp.Response, error) {
	req, err := s.newRequest(ctx, method)
	if err != nil {
		return nil, err
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, errRedirectLimit) {
			return nil, fmt.Errorf("%w: %s %s: %v", ziptype.ErrTransport, method, s.url.Redacted(), err)
		}
		return nil, retryable(fmt.Errorf("%s %s: %w", method, s.url.Redacted(), err))
	}
	s.logger.Debug("http request",
		"method", method,
		"url", s.url.Redacted(),
		"range", rangeHeader,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	return resp, nil
}

func (s *Source) newRequest(ctx context.Context, method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, s.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ziptype.ErrInvalidURL, err)
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if s.user != nil {
		password, _ := s.user.Password()
		req.SetBasicAuth(s.user.Username(), password)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if method == nethttp.MethodGet {
		// If-Match requires a strong validator.
		if s.etag != "" && !strings.HasPrefix(s.etag, "W/") && req.Header.Get("If-Match") == "" {
			req.Header.Set("If-Match", s.etag)
		}
		if s.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
			req.Header.Set("If-Unmodified-Since", s.lastModified)
		}
	}
	return req, nil
}

// statusError classifies an unexpected status. Request timeouts, throttling,
// and server errors are retryable.
func (s *Source) statusError(resp *nethttp.Response) error {
	err := fmt.Errorf("%w: %s: %s", ziptype.ErrTransport, s.url.Redacted(), resp.Status)
	switch {
	case resp.StatusCode == nethttp.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s changed while reading", ziptype.ErrTransport, s.url.Redacted())
	case resp.StatusCode == nethttp.StatusRequestTimeout,
		resp.StatusCode == nethttp.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return retryable(err)
	default:
		return err
	}
}

// bodyError classifies a failure while reading n of length body bytes.
func (s *Source) bodyError(ctx context.Context, off, length, n int64, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: range [%d, +%d) ended after %d bytes", ziptype.ErrShortRead, off, length, n)
	}
	return retryable(fmt.Errorf("read body of %s: %w", s.url.Redacted(), err))
}

// headLength returns the length a HEAD response declares, or -1. Some
// transports, file:// among them, leave ContentLength at zero while the
// header carries the size. A zero length is not trusted.
func headLength(resp *nethttp.Response) int64 {
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil || n <= 0 {
		return -1
	}
	return n
}

// fetchMetadata learns the remote size and validators. HEAD is tried first;
// when it fails or reports no positive length, a one byte range probe
// supplies the size from Content-Range.
func (s *Source) fetchMetadata(ctx context.Context) error {
	size := int64(-1)
	err := s.retry(ctx, "head", func() error {
		resp, err := s.do(ctx, nethttp.MethodHead, "")
		if err != nil {
			return err
		}
		defer drain(resp.Body)
		if resp.StatusCode != nethttp.StatusOK {
			return s.statusError(resp)
		}
		size = headLength(resp)
		s.etag = resp.Header.Get("ETag")
		s.lastModified = resp.Header.Get("Last-Modified")
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("head request failed, probing size with a range request", "error", err)
	}
	if size > 0 {
		s.size = size
		return nil
	}

	return s.retry(ctx, "size probe", func() error {
		resp, err := s.do(ctx, nethttp.MethodGet, "bytes=0-0")
		if err != nil {
			return err
		}
		defer drain(resp.Body)

		switch resp.StatusCode {
		case nethttp.StatusPartialContent:
		case nethttp.StatusOK:
			return fmt.Errorf("%w: %s ignored the size probe range", ziptype.ErrRangeNotSupported, s.url.Redacted())
		case nethttp.StatusRequestedRangeNotSatisfiable:
			// An empty resource cannot satisfy bytes=0-0.
			_, _, total, perr := parseContentRange(resp.Header.Get("Content-Range"))
			if perr == nil && total == 0 {
				s.size = 0
				return nil
			}
			return s.statusError(resp)
		default:
			return s.statusError(resp)
		}

		_, _, total, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return fmt.Errorf("%w: %v", ziptype.ErrRangeNotSupported, err)
		}
		if total < 0 {
			return fmt.Errorf("%w: %s did not report its size", ziptype.ErrRangeNotSupported, s.url.Redacted())
		}
		s.size = total
		if s.etag == "" {
			s.etag = resp.Header.Get("ETag")
		}
		if s.lastModified == "" {
			s.lastModified = resp.Header.Get("Last-Modified")
		}
		return nil
	})
}

// rangeReadCloser streams one range response body.
type rangeReadCloser struct {
	ctx    context.Context
	src    *Source
	off    int64
	length int64
	read   int64
	body   io.ReadCloser
	reader io.Reader
}

func (r *rangeReadCloser) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.read += int64(n)
	if err == nil || (err == io.EOF && r.read == r.length) {
		return n, err
	}
	if err == io.EOF {
		// The limit was not reached, so the body ended early.
		err = io.ErrUnexpectedEOF
	}
	berr := r.src.bodyError(r.ctx, r.off, r.length, r.read, err)
	var re *retryableError
	if asRetryable(berr, &re) {
		berr = fmt.Errorf("%w: %v", ziptype.ErrTransport, re.err)
	}
	return n, berr
}

func (r *rangeReadCloser) Close() error {
	_, _ = io.CopyN(io.Discard, r.body, maxDrain)
	return r.body.Close()
}

// maxDrain bounds how much of an unwanted body is read so the connection
// can be reused. Larger bodies are abandoned with their connection.
const maxDrain = 64 << 10

func drain(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, maxDrain)
	_ = body.Close()
}

// parseContentRange parses "bytes first-last/length". Unknown parts are -1.
func parseContentRange(value string) (first, last, length int64, err error) {
	first, last, length = -1, -1, -1

	// Content-Range: bytes 42-1233/1234
	// Content-Range: bytes 42-1233/*
	// Content-Range: bytes */1234
	value = strings.TrimSpace(value)
	rest, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return first, last, length, fmt.Errorf("invalid Content-Range %q", value)
	}
	span, total, ok := strings.Cut(rest, "/")
	if !ok {
		return first, last, length, fmt.Errorf("invalid Content-Range %q", value)
	}
	if total != "*" {
		length, err = strconv.ParseInt(total, 10, 64)
		if err != nil || length < 0 {
			return -1, -1, -1, fmt.Errorf("invalid Content-Range %q", value)
		}
	}
	if span != "*" {
		a, b, ok := strings.Cut(span, "-")
		if !ok {
			return -1, -1, -1, fmt.Errorf("invalid Content-Range %q", value)
		}
		first, err = strconv.ParseInt(a, 10, 64)
		if err != nil {
			return -1, -1, -1, fmt.Errorf("invalid Content-Range %q", value)
		}
		last, err = strconv.ParseInt(b, 10, 64)
		if err != nil || last < first {
			return -1, -1, -1, fmt.Errorf("invalid Content-Range %q", value)
		}
	}
	if first == -1 && last == -1 && length == -1 {
		return -1, -1, -1, fmt.Errorf("invalid Content-Range %q", value)
	}
	return first, last, length, nil
}
