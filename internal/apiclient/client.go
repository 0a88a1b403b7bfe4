// Package apiclient is a typed client for the pulsewatch HTTP API.
//
// Error responses are mapped back to the service error taxonomy, so callers
// use errors.Is with service.ErrNotFound, service.ErrNameConflict and
// service.ErrEngineUnavailable exactly as they would against the engine.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/pulsewatch/service"
)

const (
	maxResponseBodySize = 1 << 20 // 1MB

	// DefaultTimeout bounds a single API request.
	DefaultTimeout = 10 * time.Second

	// DefaultAppendAttempts is how many times AppendStatus tries before
	// giving up.
	DefaultAppendAttempts = 3

	// DefaultRetryBackoff is the base delay between append attempts; the
	// n-th retry waits n times this long.
	DefaultRetryBackoff = 200 * time.Millisecond
)

// APIError is a non-2xx response that does not map onto a service sentinel.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error: %d: %s", e.StatusCode, e.Message)
}

// Info mirrors the body of GET /api/v1/info.
type Info struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Writable bool   `json:"writable"`
	Capacity int    `json:"capacity"`
	Strategy string `json:"strategy"`
}

// Client talks to one pulsewatch server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
	logger     *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry sets the number of AppendStatus attempts and the base backoff.
// Values below one attempt are treated as one.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = attempts
		c.backoff = backoff
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a [Client] for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: host is required", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		attempts:   DefaultAppendAttempts,
		backoff:    DefaultRetryBackoff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Info returns the server's self-description.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var info Info
	err := c.do(ctx, http.MethodGet, "/api/v1/info", nil, &info)
	return info, err
}

// ListServices returns the registered service names in order.
func (c *Client) ListServices(ctx context.Context) ([]string, error) {
	var names []string
	err := c.do(ctx, http.MethodGet, "/api/v1/services", nil, &names)
	return names, err
}

// CreateService registers name with spec.
func (c *Client) CreateService(ctx context.Context, name string, spec service.Spec) error {
	return c.do(ctx, http.MethodPost, servicePath(name), spec, nil)
}

// UpdateSpec replaces the spec of an existing service.
func (c *Client) UpdateSpec(ctx context.Context, name string, spec service.Spec) error {
	return c.do(ctx, http.MethodPut, servicePath(name), spec, nil)
}

// DeleteService removes a service and its history.
func (c *Client) DeleteService(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, servicePath(name), nil, nil)
}

// GetSpec returns the spec of a service.
func (c *Client) GetSpec(ctx context.Context, name string) (service.Spec, error) {
	var spec service.Spec
	err := c.do(ctx, http.MethodGet, servicePath(name)+"/spec", nil, &spec)
	return spec, err
}

// GetHistory returns the retained statuses of a service in sequence order.
func (c *Client) GetHistory(ctx context.Context, name string) ([]service.TimedStatus, error) {
	var history []service.TimedStatus
	err := c.do(ctx, http.MethodGet, servicePath(name)+"/statuses", nil, &history)
	return history, err
}

// GetStatusNear returns the status observed closest to t. found is false
// when the service has no history.
func (c *Client) GetStatusNear(ctx context.Context, name string, t time.Time) (ts service.TimedStatus, found bool, err error) {
	path := servicePath(name) + "/status?at=" + url.QueryEscape(t.Format(time.RFC3339Nano))
	var out *service.TimedStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return service.TimedStatus{}, false, err
	}
	if out == nil {
		return service.TimedStatus{}, false, nil
	}
	return *out, true, nil
}

// AppendStatus posts one observation. An append is not idempotent, so it is
// retried with linear backoff only when the server cannot have applied it:
// the connection was never established, or the server answered 5xx.
func (c *Client) AppendStatus(ctx context.Context, name string, ts service.TimedStatus) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		err = c.do(ctx, http.MethodPost, servicePath(name)+"/statuses", ts, nil)
		if err == nil || !retryable(err) || attempt == c.attempts {
			break
		}

		c.logger.Debug("retrying status append",
			"service", name,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-time.After(time.Duration(attempt) * c.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// retryable reports whether a failed append may be repeated without risking
// a duplicate observation.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, service.ErrEngineUnavailable) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	// past the dial the request may have reached the server
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func servicePath(name string) string {
	return "/api/v1/services/" + url.PathEscape(name)
}

// do sends one request with an optional JSON body and decodes a JSON
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response into a sentinel-wrapping error.
func decodeError(code int, data []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(data, &body)
	msg := body.Error
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}

	var sentinel error
	switch code {
	case http.StatusNotFound:
		sentinel = service.ErrNotFound
	case http.StatusConflict:
		sentinel = service.ErrNameConflict
	case http.StatusServiceUnavailable:
		sentinel = service.ErrEngineUnavailable
	default:
		return &APIError{StatusCode: code, Message: msg}
	}

	if msg == "" || msg == sentinel.Error() {
		return sentinel
	}
	// the server already prefixes the sentinel text; avoid repeating it
	if strings.HasPrefix(msg, sentinel.Error()) {
		return fmt.Errorf("%w%s", sentinel, strings.TrimPrefix(msg, sentinel.Error()))
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
