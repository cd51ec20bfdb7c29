package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// archiveURL returns the URL to profile against. In local mode it serves
// data from an in-process range-capable server.
//
//nolint:gocritic // hugeParam acceptable for profiler config
func archiveURL(cfg config, data []byte) (string, func(), error) {
	if cfg.url == "" {
		return "", nil, errors.New("url is required")
	}
	if cfg.url != localURL {
		return cfg.url, nil, nil
	}
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		nethttp.ServeContent(w, r, "archive.zip", time.Time{}, bytes.NewReader(data))
	}))
	return server.URL + "/archive.zip", server.Close, nil
}

//nolint:gocritic // hugeParam acceptable for profiler config
func newHTTPClient(cfg config) *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		transport = base.Clone()
	}
	if cfg.latency > 0 || cfg.bandwidth > 0 {
		transport = &shapingTransport{
			base:      transport,
			latency:   cfg.latency,
			bandwidth: cfg.bandwidth,
		}
	}
	return &nethttp.Client{Transport: transport}
}

// shapingTransport delays each request and rate limits response bodies.
type shapingTransport struct {
	base      nethttp.RoundTripper
	latency   time.Duration
	bandwidth int64
}

func (rt *shapingTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if rt.latency > 0 {
		timer := time.NewTimer(rt.latency)
		select {
		case <-timer.C:
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		}
	}
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if rt.bandwidth > 0 && resp.Body != nil {
		burst := int(min(rt.bandwidth, 64<<10))
		resp.Body = &throttleReadCloser{
			ctx:     req.Context(),
			rc:      resp.Body,
			limiter: rate.NewLimiter(rate.Limit(rt.bandwidth), burst),
		}
	}
	return resp, nil
}

// throttleReadCloser paces body reads to the limiter's rate.
type throttleReadCloser struct {
	ctx     context.Context
	rc      io.ReadCloser
	limiter *rate.Limiter
}

func (tr *throttleReadCloser) Read(p []byte) (int, error) {
	if burst := tr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := tr.rc.Read(p)
	if n > 0 {
		if werr := tr.limiter.WaitN(tr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (tr *throttleReadCloser) Close() error {
	return tr.rc.Close()
}

// parseBytesPerSecond parses rates such as "10MiBps", "512KiB/s", or "1G".
// IEC suffixes (KiB, MiB) are powers of 1024; SI suffixes (KB, MB) are
// powers of 1000.
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.TrimSpace(value)
	text = strings.TrimSuffix(text, "/s")
	text = strings.TrimSuffix(text, "ps")
	n, err := humanize.ParseBytes(text)
	if err != nil || n == 0 || n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return int64(n), nil
}
