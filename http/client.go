package http

import (
	"errors"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"time"
)

// Defaults for ClientConfig fields left at zero.
const (
	DefaultMaxRedirects   = 10
	DefaultConnectTimeout = 30 * time.Second
	DefaultKeepAlive      = 120 * time.Second
)

// errRedirectLimit stops a redirect chain; it is never retried.
var errRedirectLimit = errors.New("redirect limit reached")

// ClientConfig controls the transport built by NewClient.
type ClientConfig struct {
	// MaxRedirects caps followed redirects. Negative disables redirects.
	MaxRedirects int

	// ConnectTimeout bounds establishing a TCP connection.
	ConnectTimeout time.Duration

	// KeepAlive is the TCP keep-alive period.
	KeepAlive time.Duration

	// Proxy routes every request through this proxy. If nil, the
	// environment's proxy settings apply.
	Proxy *url.URL
}

// NewClient returns an HTTP client that also serves file:// URLs from the
// local filesystem.
func NewClient(cfg ClientConfig) *nethttp.Client {
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	transport := nethttp.DefaultTransport.(*nethttp.Transport).Clone()
	transport.DialContext = dialer.DialContext
	if cfg.Proxy != nil {
		transport.Proxy = nethttp.ProxyURL(cfg.Proxy)
	}
	transport.RegisterProtocol("file", nethttp.NewFileTransport(nethttp.Dir("/")))

	maxRedirects := cfg.MaxRedirects
	return &nethttp.Client{
		Transport: transport,
		CheckRedirect: func(_ *nethttp.Request, via []*nethttp.Request) error {
			if maxRedirects < 0 {
				return fmt.Errorf("%w: redirects disabled", errRedirectLimit)
			}
			if len(via) > maxRedirects {
				return fmt.Errorf("%w: stopped after %d redirects", errRedirectLimit, maxRedirects)
			}
			return nil
		},
	}
}
