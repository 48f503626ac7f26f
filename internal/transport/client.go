// Package transport provides the resilient HTTP access layer shared by
// both external system clients: quota enforcement, retry with backoff,
// and pagination merging. All remote reads and writes of the
// reconciliation engine go through it.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/centroplan/vysync/pkg/errors"
	"github.com/centroplan/vysync/pkg/logging"
)

// Retry describes the retry policy of one external system.
type Retry struct {
	MaxAttempts   int
	BackoffFactor float64
	Timeout       time.Duration
}

// Authenticator applies system-specific credentials to a request.
type Authenticator interface {
	Apply(req *http.Request)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(req *http.Request)

// Apply implements Authenticator.
func (f AuthenticatorFunc) Apply(req *http.Request) { f(req) }

// Client issues rate-limited, retried HTTP calls against one external
// system. One instance owns the quota counters for that system.
type Client struct {
	system  string
	baseURL string
	http    *http.Client
	limiter *Limiter
	retry   Retry
	auth    Authenticator

	// injectable backoff sleep for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a transport client for one external system.
func New(system, baseURL string, quota Quota, retry Retry, auth Authenticator) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BackoffFactor <= 0 {
		retry.BackoffFactor = 2
	}
	return &Client{
		system:  system,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: retry.Timeout},
		limiter: NewLimiter(quota),
		retry:   retry,
		auth:    auth,
		sleep:   sleepCtx,
	}
}

// Get performs a GET request and returns the response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

// Create performs a POST request with a JSON body.
func (c *Client) Create(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Update performs a PATCH request with a JSON body.
func (c *Client) Update(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, path, nil, body)
}

// Remaining exposes the tightest remaining quota budget, for status
// reporting.
func (c *Client) Remaining() int {
	return c.limiter.Remaining()
}

// do runs the retry loop around one logical request. Transient failures
// (429, 5xx, network errors) are retried with exponential backoff up to
// the attempt cap; other 4xx fail immediately with the body surfaced.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any) (json.RawMessage, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.NewValidationError("body", body, err.Error())
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		logging.Ctx(ctx).Debug().
			Str("system", c.system).
			Str("method", method).
			Str("path", path).
			Int("attempt", attempt).
			Msg("Issuing request")

		respBody, status, retryAfter, err := c.send(ctx, method, endpoint, payload)
		switch {
		case err != nil:
			// Network-level failure: retryable.
			lastErr = &errors.APIError{System: c.system, Endpoint: path, Err: err}

		case status == http.StatusTooManyRequests:
			lastErr = errors.NewAPIError(c.system, status, path, string(respBody))
			// Honor Retry-After when present, otherwise back off.
			if retryAfter > 0 {
				if err := c.sleep(ctx, retryAfter); err != nil {
					return nil, err
				}
				continue
			}

		case status >= 500:
			lastErr = errors.NewAPIError(c.system, status, path, string(respBody))

		case status >= 400:
			// Non-retryable: surface the response body for diagnostics.
			return nil, errors.NewAPIError(c.system, status, path, string(respBody))

		default:
			return respBody, nil
		}

		if attempt < c.retry.MaxAttempts {
			backoff := time.Duration(math.Pow(c.retry.BackoffFactor, float64(attempt)) * float64(time.Second))
			logging.Ctx(ctx).Warn().
				Str("system", c.system).
				Str("path", path).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Transient failure, retrying")
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
	}

	logging.Ctx(ctx).Error().
		Str("system", c.system).
		Str("path", path).
		Int("attempts", c.retry.MaxAttempts).
		Err(lastErr).
		Msg("Retries exhausted")
	return nil, lastErr
}

// send issues a single HTTP request and returns the body, status, and
// any Retry-After hint from a 429 response.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, time.Duration, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, 0, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "vysync/1.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		c.auth.Apply(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
			retryAfter = time.Duration(secs) * time.Second
		}
	}
	return respBody, resp.StatusCode, retryAfter, nil
}
