package speedtest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Version of the client, reported in the user agent and by --version.
const Version = "1.0.0"

const defaultTimeout = 10 * time.Second

// Client is a speedtest client. It owns the transport primitive used by
// every remote operation: configuration fetch, server-list fetch, latency
// probes and throughput requests.
type Client struct {
	doer      *http.Client
	timeout   time.Duration
	secure    bool
	source    string
	proxy     string
	userAgent string
}

// Option is a function that can be passed to New to modify the Client.
type Option func(*Client)

// WithDoer sets the http.Client used to make requests.
func WithDoer(doer *http.Client) Option {
	return func(c *Client) {
		c.doer = doer
	}
}

// WithTimeout sets the per-request timeout. This bounds each individual
// transfer; phase deadlines are a separate timer.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithSecure makes the client talk to speedtest.net operated endpoints
// over HTTPS instead of HTTP.
func WithSecure(secure bool) Option {
	return func(c *Client) {
		c.secure = secure
	}
}

// WithSourceAddress binds outgoing connections to the given local IP.
func WithSourceAddress(addr string) Option {
	return func(c *Client) {
		c.source = addr
	}
}

// WithProxy routes all requests through the given upstream proxy URL.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		c.proxy = proxyURL
	}
}

// WithUserAgent overrides the default user agent string.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a new speedtest client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:   defaultTimeout,
		userAgent: buildUserAgent(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.doer == nil {
		transport := &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		}
		if c.proxy != "" {
			proxyURL, err := url.Parse(c.proxy)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing proxy url %q", c.proxy)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		if c.source != "" {
			localAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(c.source, "0"))
			if err != nil {
				return nil, errors.Wrapf(err, "resolving source address %q", c.source)
			}
			dialer := &net.Dialer{
				LocalAddr: localAddr,
				Timeout:   30 * time.Second,
			}
			transport.DialContext = dialer.DialContext
		}
		c.doer = &http.Client{
			Transport: transport,
			Timeout:   c.timeout,
		}
	}

	return c, nil
}

func buildUserAgent() string {
	return fmt.Sprintf("Mozilla/5.0 (%s; U; %s; en-us) Go/%s (KHTML, like Gecko) speedtest-cli/%s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(), Version)
}

// newRequest builds a request with the standard headers applied. URLs
// starting with "://" get the scheme the client is configured for; GET
// URLs additionally get a cache-busting query parameter so intermediate
// caches never serve a measured transfer.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	if strings.HasPrefix(rawURL, "://") {
		rawURL = c.scheme() + rawURL
	} else if c.secure {
		rawURL = strings.Replace(rawURL, "http://", "https://", 1)
	}

	if method == http.MethodGet {
		separator := "?"
		if strings.Contains(rawURL, "?") {
			separator = "&"
		}
		rawURL = fmt.Sprintf("%s%sx=%d", rawURL, separator, time.Now().UnixNano())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func (c *Client) scheme() string {
	if c.secure {
		return "https"
	}
	return "http"
}
