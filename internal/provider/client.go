// Package provider is the HTTP client for the Nimbus REST API. It owns
// retry/backoff for transport-level failures; business-logic errors are
// returned to callers untouched.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spinup-sh/spinup/internal/models"
)

// DefaultBaseURL is the production Nimbus API endpoint.
const DefaultBaseURL = "https://api.nimbus.dev"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// APIError is a non-2xx response that is not retryable. Callers decide
// what it means for their operation.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Status, body)
}

// Client calls one provider's REST API with a bearer token, retrying
// rate-limit and server-side failures with exponential backoff.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	policy  models.RetryPolicy
	sleep   func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p models.RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient returns a client bound to baseURL and token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		policy:  models.DefaultRetryPolicy(),
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryable reports whether a status warrants another attempt: rate
// limiting or a server-side failure. Every other status is the caller's
// problem.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do performs one API call with bounded retries. A nil out skips
// decoding. Transport errors (reset, timeout) retry like 5xx; the
// creation endpoints are safe to re-send because the provider treats a
// duplicate name as a conflict, not a second resource.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
	}

	delay := c.policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			c.sleep(delay)
			delay = c.policy.Next(delay)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()

		if retryable(resp.StatusCode) {
			lastErr = &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
			continue
		}
		if resp.StatusCode >= 300 {
			return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode %s %s response: %w", method, path, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%s %s failed after %d attempts: %w", method, path, c.policy.MaxAttempts, lastErr)
}
