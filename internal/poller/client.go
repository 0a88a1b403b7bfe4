package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// userAgent identifies probe traffic in target access logs.
const userAgent = "pulsewatch-checker"

// connection pooling limits to prevent resource exhaustion when probing many targets
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Response is the raw outcome of one probe.
type Response struct {
	// Body contains the HTTP response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code. Zero if the request failed before
	// receiving a response.
	StatusCode int

	// Latency is the time until response headers arrived, or until the
	// request failed.
	Latency time.Duration

	// Error is a transport-level failure. A non-2xx status is not an error.
	Error error
}

// Client is an HTTP client wrapper for health probes.
//
// Timeouts are applied per probe via context rather than on the client, so
// targets can carry their own timeout.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a probing [Client] with pooled, keep-alive connections.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Probe sends one request to t and reports what happened. Probe never
// returns an error directly; failures land in [Response.Error].
func (c *Client) Probe(ctx context.Context, t Target) Response {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := t.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, t.URL, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}
	req.Header.Set("User-Agent", userAgent)
	for key, value := range t.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return Response{Latency: latency, Error: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}
}

// Close closes idle pooled connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
