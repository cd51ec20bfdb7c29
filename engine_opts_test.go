package partialzip

import (
	"bytes"
	"context"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/partialzip/internal/decode"
	"github.com/meigma/partialzip/internal/testutil"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	e, err := New()
	require.NoError(t, err)

	assert.Equal(t, DefaultUserAgent, e.userAgent)
	assert.Equal(t, uint64(decode.DefaultMaxDecoderMemory), e.maxDecoderMemory)
	assert.Zero(t, e.maxEntrySize)
	assert.False(t, e.checkRange)
	assert.NotNil(t, e.client)
	assert.NotNil(t, e.logger)
	assert.NotNil(t, e.pool)
}

func TestOptionValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{name: "negative redirects", opt: WithMaxRedirects(-1), wantErr: "max redirects must be non-negative"},
		{name: "zero connect timeout", opt: WithConnectTimeout(0), wantErr: "connect timeout must be positive"},
		{name: "negative keep-alive", opt: WithKeepAlive(-time.Second), wantErr: "keep-alive must be positive"},
		{name: "relative proxy", opt: WithProxy("proxy.local:3128"), wantErr: "proxy must be an absolute URL"},
		{name: "negative retries", opt: WithRetries(-1), wantErr: "retries must be non-negative"},
		{name: "inverted backoff", opt: WithRetryBackoff(time.Second, time.Millisecond), wantErr: "retry backoff"},
		{name: "valid redirects", opt: WithMaxRedirects(3)},
		{name: "valid proxy", opt: WithProxy("http://proxy.local:3128")},
		{name: "zero retries", opt: WithRetries(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tt.opt)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestWithMaxRedirects_ZeroDisables(t *testing.T) {
	t.Parallel()

	e, err := New(WithMaxRedirects(0))
	require.NoError(t, err)
	assert.Equal(t, -1, e.clientConfig.MaxRedirects)
}

func TestRequestOptionsReachServer(t *testing.T) {
	t.Parallel()

	data := testutil.BuildZip(t, sampleFiles(), "")
	var seen []nethttp.Header
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		seen = append(seen, r.Header.Clone())
		nethttp.ServeContent(w, r, "archive.zip", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	e := newTestEngine(t,
		WithHeader("X-Token", "secret"),
		WithBasicAuth("alice", "hunter2"),
		WithUserAgent("tests/1.0"),
	)
	_, err := e.List(context.Background(), server.URL)
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	for _, h := range seen {
		assert.Equal(t, "secret", h.Get("X-Token"))
		assert.Equal(t, "tests/1.0", h.Get("User-Agent"))
		assert.Equal(t, "identity", h.Get("Accept-Encoding"))
		assert.NotEmpty(t, h.Get("Authorization"))
	}
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()

	server := testutil.NewBytesServer(t, testutil.BuildZip(t, sampleFiles(), ""))
	client := &nethttp.Client{Transport: &countingTransport{next: nethttp.DefaultTransport}}

	e := newTestEngine(t, WithHTTPClient(client))
	_, err := e.List(context.Background(), server.ArchiveURL())
	require.NoError(t, err)
	assert.Equal(t, server.Requests(), client.Transport.(*countingTransport).n)
}

type countingTransport struct {
	next nethttp.RoundTripper
	n    int
}

func (c *countingTransport) RoundTrip(r *nethttp.Request) (*nethttp.Response, error) {
	c.n++
	return c.next.RoundTrip(r)
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	server := testutil.NewBytesServer(t, testutil.BuildZip(t, sampleFiles(), ""))

	e := newTestEngine(t, WithLogger(logger))
	_, err := e.List(context.Background(), server.ArchiveURL())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "read central directory")
}
