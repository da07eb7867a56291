package polygon

import (
	"context"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/darylmathison/dividend-stock-analysis/pkg/logger"
)

const (
	// DefaultBaseURL is the Polygon REST endpoint.
	DefaultBaseURL = "https://api.polygon.io"
	// DefaultPageSize is the largest page the dividends endpoint serves.
	DefaultPageSize = 1000

	defaultConnectTimeout = 3 * time.Second
	defaultReadTimeout    = 10 * time.Second
)

// RetryPolicy governs waits on HTTP 429.
type RetryPolicy struct {
	// Wait is the pause before the first retry.
	Wait time.Duration
	// MaxRetries caps consecutive retries of one page; 0 retries forever.
	MaxRetries int
	// Multiplier grows the wait after each retry; 1 keeps it fixed.
	Multiplier float64
}

// DefaultRetryPolicy waits a fixed minute and never gives up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Wait: time.Minute, MaxRetries: 0, Multiplier: 1}
}

// delay returns the wait before retry number attempt, counting from zero.
func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Multiplier <= 1 {
		return p.Wait
	}
	return time.Duration(float64(p.Wait) * math.Pow(p.Multiplier, float64(attempt)))
}

func (p RetryPolicy) exhausted(retries int) bool {
	return p.MaxRetries > 0 && retries >= p.MaxRetries
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithBaseURL sets the provider root, e.g. an httptest server URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithAPIKey sets the credential sent as the apiKey query parameter.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithPageSize sets the limit parameter of the first request.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithTimeouts sets the dial timeout and the response header timeout. The
// overall request is capped at their sum.
func WithTimeouts(connect, read time.Duration) Option {
	return func(c *Client) {
		if connect > 0 && read > 0 {
			c.http = newHTTPClient(connect, read)
		}
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRetryPolicy sets the 429 handling.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		if p.Wait < 0 {
			p.Wait = 0
		}
		if p.Multiplier <= 0 {
			p.Multiplier = 1
		}
		c.retry = p
	}
}

// WithSleeper replaces the wait used between rate-limited attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connect}).DialContext,
		TLSHandshakeTimeout:   connect,
		ResponseHeaderTimeout: read,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   connect + read,
	}
}
