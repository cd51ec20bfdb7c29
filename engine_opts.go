package partialzip

import (
	"errors"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"time"

	ziphttp "github.com/meigma/partialzip/http"
)

// Option configures an Engine.
type Option func(*Engine) error

// DefaultMaxBufferedSize is the largest entry WithVerifyBeforeWrite buffers
// when no WithMaxEntrySize limit is set (256MB).
const DefaultMaxBufferedSize = 256 << 20

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "partialzip"

// --- Transport Options ---

// WithHTTPClient sets the HTTP client used for every request. Transport
// options (redirects, timeouts, proxy) are ignored when a client is set.
func WithHTTPClient(client *nethttp.Client) Option {
	return func(e *Engine) error {
		e.client = client
		return nil
	}
}

// WithMaxRedirects caps the number of redirects followed per request.
// Zero disables redirects. The default is 10.
func WithMaxRedirects(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			return errors.New("max redirects must be non-negative")
		}
		if n == 0 {
			n = -1
		}
		e.clientConfig.MaxRedirects = n
		return nil
	}
}

// WithConnectTimeout bounds TCP connection setup. The default is 30s.
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		e.clientConfig.ConnectTimeout = d
		return nil
	}
}

// WithKeepAlive sets the TCP keep-alive period. The default is 120s.
func WithKeepAlive(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return errors.New("keep-alive must be positive")
		}
		e.clientConfig.KeepAlive = d
		return nil
	}
}

// WithProxy routes every request through the proxy at rawURL.
func WithProxy(rawURL string) Option {
	return func(e *Engine) error {
		u, err := url.Parse(rawURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("proxy must be an absolute URL")
		}
		e.clientConfig.Proxy = u
		return nil
	}
}

// --- Request Options ---

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(e *Engine) error {
		e.headers.Set(key, value)
		return nil
	}
}

// WithBasicAuth sends HTTP basic credentials on every request.
func WithBasicAuth(username, password string) Option {
	return func(e *Engine) error {
		e.sourceOpts = append(e.sourceOpts, ziphttp.WithBasicAuth(username, password))
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(e *Engine) error {
		e.userAgent = ua
		return nil
	}
}

// WithRetries sets how many times a transient failure (connection reset,
// timeout, 408, 429, 5xx) is retried. Zero disables retries. The default is 3.
func WithRetries(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			return errors.New("retries must be non-negative")
		}
		e.sourceOpts = append(e.sourceOpts, ziphttp.WithRetries(n))
		return nil
	}
}

// WithRetryBackoff sets the initial and maximum delay between retries.
func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(e *Engine) error {
		if initial <= 0 || maxDelay < initial {
			return errors.New("retry backoff must satisfy 0 < initial <= max")
		}
		e.sourceOpts = append(e.sourceOpts, ziphttp.WithBackoff(initial, maxDelay))
		return nil
	}
}

// --- Behavior Options ---

// WithCheckRange makes every call probe the server with a one byte range
// request first and fail with ErrRangeNotSupported if it is not honored.
func WithCheckRange() Option {
	return func(e *Engine) error {
		e.checkRange = true
		return nil
	}
}

// WithMaxEntrySize refuses entries whose uncompressed size exceeds limit
// with ErrEntryTooLarge. Zero disables the limit, which is the default.
func WithMaxEntrySize(limit uint64) Option {
	return func(e *Engine) error {
		e.maxEntrySize = limit
		return nil
	}
}

// WithMaxDecoderMemory caps zstd decoder memory. Zero disables the limit.
// The default is 256MB.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(e *Engine) error {
		e.maxDecoderMemory = limit
		return nil
	}
}

// WithLogger sets a logger for the engine.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// DownloadOption configures a single Download or DownloadFile call.
type DownloadOption func(*downloadConfig)

type downloadConfig struct {
	progress      ProgressFunc
	verifyFirst   bool
	overwrite     bool
	preserveTimes bool
}

// WithProgress sets a callback that receives progress updates. During the
// payload transfer BytesDone counts cumulative compressed bytes received.
func WithProgress(fn ProgressFunc) DownloadOption {
	return func(c *downloadConfig) {
		c.progress = fn
	}
}

// WithVerifyBeforeWrite buffers the decoded entry and writes it to the sink
// only after the size and CRC32 checks pass, so a failed download writes
// nothing. The buffer is bounded by WithMaxEntrySize, or
// DefaultMaxBufferedSize when no limit is set.
func WithVerifyBeforeWrite() DownloadOption {
	return func(c *downloadConfig) {
		c.verifyFirst = true
	}
}

// WithOverwrite lets DownloadFile replace an existing output file.
func WithOverwrite() DownloadOption {
	return func(c *downloadConfig) {
		c.overwrite = true
	}
}

// WithPreserveTimes makes DownloadFile set the output's modification time
// to the entry's recorded time.
func WithPreserveTimes() DownloadOption {
	return func(c *downloadConfig) {
		c.preserveTimes = true
	}
}
