// Package httpds downloads import inputs over HTTP with retry and
// exponential backoff on transient failures (network errors, 429, 5xx).
package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config tunes the client. Zero values get defaults: 60s timeout, 3
// retries, 250ms initial backoff capped at 8s.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Header         http.Header
	Transport      http.RoundTripper
}

// Client is an HTTP GET client with retries.
type Client struct {
	hc         *http.Client
	retries    int
	initial    time.Duration
	maxBackoff time.Duration
	header     http.Header

	// wait is replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient applies defaults to cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 250 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 8 * time.Second
	}
	tr := cfg.Transport
	if tr == nil {
		tr = http.DefaultTransport
	}
	return &Client{
		hc:         &http.Client{Timeout: cfg.Timeout, Transport: tr},
		retries:    cfg.MaxRetries,
		initial:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		header:     cfg.Header.Clone(),
		wait:       waitCtx,
	}
}

// Get issues a GET, retrying transient failures. A non-retryable status
// is returned as-is; the caller closes the body.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, backoff(c.initial, attempt-1, c.maxBackoff)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		for k, vs := range c.header {
			req.Header[k] = append([]string(nil), vs...)
		}
		for k, vs := range header {
			req.Header[k] = append([]string(nil), vs...)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if !retryable(resp.StatusCode) {
			return resp, nil
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		lastErr = fmt.Errorf("httpds: GET %s: status %d", url, resp.StatusCode)
	}
	return nil, lastErr
}

// Source binds a URL as a datasource.
func (c *Client) Source(url string) *URLSource { return &URLSource{c: c, url: url} }

// URLSource is a remote input.
type URLSource struct {
	c   *Client
	url string
}

// Open returns the response body for a 2xx reply.
func (u *URLSource) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := u.c.Get(ctx, u.url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("httpds: GET %s: status %d", u.url, resp.StatusCode)
	}
	return resp.Body, nil
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff returns initial*2^n clamped to max.
func backoff(initial time.Duration, n int, max time.Duration) time.Duration {
	d := initial
	for i := 0; i < n && d < max; i++ {
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

func waitCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
