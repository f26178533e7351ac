// Package httpclient is a small JSON-over-HTTP client built on fasthttp, shared
// by the agent transport and the remote scoring API.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const userAgent = "chessbench/1.0"

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: status=%d body=%s", e.URL, e.Status, e.Body)
}

type Client struct {
	http     *fasthttp.Client
	timeout  time.Duration
	attempts int
}

type Option func(*Client)

// WithTimeout bounds each request. Zero disables the client-side bound, leaving
// only the caller's context deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.http.ReadTimeout = d
		c.http.WriteTimeout = d
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

// WithRetry sets the attempt count for calls that allow retries.
func WithRetry(attempts int) Option {
	return func(c *Client) { c.attempts = attempts }
}

func New(opts ...Option) *Client {
	c := &Client{
		http: &fasthttp.Client{
			Name:            userAgent,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 64,
		},
		timeout:  10 * time.Second,
		attempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type call struct {
	method string
	url    string
	body   []byte
	out    any
	retry  bool
}

// PostJSON posts in as JSON and decodes the response into out (when non-nil).
// With retry set, connection errors and 5xx responses are retried with backoff.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any, retry bool) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.exchange(ctx, call{method: fasthttp.MethodPost, url: url, body: body, out: out, retry: retry})
}

// GetJSON fetches url and decodes the JSON body into out (when non-nil).
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.exchange(ctx, call{method: fasthttp.MethodGet, url: url, out: out})
}

func (c *Client) exchange(ctx context.Context, cl call) error {
	tries := 1
	if cl.retry {
		tries = max(c.attempts, 1)
	}
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		again, err := c.once(ctx, cl)
		if err == nil || !again || n >= tries {
			return err
		}
		if sleepWithContext(ctx, backoffDuration(n)) != nil {
			return err
		}
	}
}

// once performs a single round trip. again reports whether a retry may help.
func (c *Client) once(ctx context.Context, cl call) (again bool, err error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(cl.method)
	req.SetRequestURI(cl.url)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if cl.body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(cl.body)
	}

	if deadline, ok := c.computeDeadline(ctx); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.Do(req, resp)
	}
	if err != nil {
		return true, fmt.Errorf("request %s: %w", cl.url, err)
	}

	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return retryableStatus(status), &StatusError{URL: cl.url, Status: status, Body: truncate(string(resp.Body()), 512)}
	}
	if cl.out != nil {
		if err := json.Unmarshal(resp.Body(), cl.out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return false, nil
}

// computeDeadline picks the earlier of the context deadline and the client
// timeout. ok is false when neither applies.
func (c *Client) computeDeadline(ctx context.Context) (time.Time, bool) {
	dl, hasCtx := ctx.Deadline()
	if c.timeout <= 0 {
		return dl, hasCtx
	}
	own := time.Now().Add(c.timeout)
	if hasCtx && dl.Before(own) {
		return dl, true
	}
	return own, true
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDuration doubles from 100ms and stops growing after the sixth attempt.
func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return 100 * time.Millisecond << (attempt - 1)
}

func retryableStatus(code int) bool {
	switch code {
	case fasthttp.StatusInternalServerError, fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
