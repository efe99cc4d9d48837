// Package infra provides the HTTP transport shared by every EDGAR call:
// a rate-limited client that always sends the configured User-Agent,
// plus whole-body and download-to-file helpers.
package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/ratelimit"
)

// DefaultUserAgent is sent when no contact string is configured.
// SEC rejects anonymous clients, so deployments should override it.
const DefaultUserAgent = "form13f/1.0 (admin@example.com)"

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Temporary reports whether retrying the request could succeed.
func (e *ErrHTTP) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientOptions configures a Client. Zero values select the defaults.
type ClientOptions struct {
	UserAgent string
	// RateLimit is the maximum number of requests per second; <= 0 disables throttling.
	RateLimit int
	// Timeout bounds Get calls. Download is bounded only by its context.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is a throttled HTTP client for EDGAR.
type Client struct {
	http      *http.Client
	userAgent string
	timeout   time.Duration
	limiter   ratelimit.Limiter
}

// NewClient creates a client from opts.
func NewClient(opts ClientOptions) *Client {
	c := &Client{
		http:      opts.HTTPClient,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if opts.RateLimit > 0 {
		c.limiter = ratelimit.New(opts.RateLimit)
	} else {
		c.limiter = ratelimit.NewUnlimited()
	}
	return c
}

// DoGet performs a GET request with the client's User-Agent, returning the response body.
// The caller is responsible for closing the returned ReadCloser.
func (c *Client) DoGet(ctx context.Context, url string) (io.ReadCloser, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")

	c.limiter.Take()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP GET %s: %w", url, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.StatusCode, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return resp.Body, resp.StatusCode, nil
}

// Get returns the full response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	body, _, err := c.DoGet(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return data, nil
}

// Download streams url into dest. The body is written to dest+".part" and
// renamed into place only after the copy finished, so dest exists only
// when it is complete.
func (c *Client) Download(ctx context.Context, url, dest string) error {
	body, _, err := c.DoGet(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(part)
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return fmt.Errorf("close %s: %w", part, err)
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return fmt.Errorf("finalize %s: %w", dest, err)
	}
	return nil
}
