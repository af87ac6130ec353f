// Package httpkit is the shared HTTP layer both platform adapters build on:
// size-capped request/response handling, structured logging, and the retry
// policy spec.md §5 keeps out of the adapter contract.
package httpkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
)

const (
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps a platform response body; both A and B are
	// JSON-over-HTTPS REST APIs that never legitimately return more.
	MaxResponseSize = 10 * 1024 * 1024

	// MaxRequestSize caps an outbound issue create/update body.
	MaxRequestSize = 5 * 1024 * 1024
)

// Limiter is consulted before every outbound request and notified of a
// server-driven backoff hint, implemented by internal/ratelimit.Manager.
// Kept as an interface here so httpkit never imports the redis-backed
// implementation package.
type Limiter interface {
	Wait(ctx context.Context, key string) error
	BlockFor(ctx context.Context, key string, d time.Duration)
}

// Client wraps *http.Client with logging, size limits, and the retry policy
// in retry.go. Each platform adapter owns one, configured with that
// platform's base URL and auth header.
type Client struct {
	client  *http.Client
	logger  ectologger.Logger
	baseURL string
	retry   RetryPolicy
	// authHeader is applied to every outbound request, e.g. "X-Redmine-API-Key"
	// for A or "PRIVATE-TOKEN" for B.
	authHeader string
	authValue  string

	limiter    Limiter
	limiterKey string
}

type Config struct {
	BaseURL            string
	AuthHeader         string
	AuthValue          string
	Timeout            time.Duration
	MaxIdleConns       int
	IdleConnTimeout    time.Duration
	DisableCompression bool

	// Limiter and LimiterKey are both optional; a nil Limiter disables
	// rate-limit consultation entirely.
	Limiter    Limiter
	LimiterKey string
}

func DefaultConfig(baseURL, authHeader, authValue string) Config {
	return Config{
		BaseURL:         baseURL,
		AuthHeader:      authHeader,
		AuthValue:       authValue,
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

func NewClient(cfg Config, logger ectologger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:       cfg.MaxIdleConns,
		IdleConnTimeout:    cfg.IdleConnTimeout,
		DisableCompression: cfg.DisableCompression,
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		logger:     logger,
		baseURL:    cfg.BaseURL,
		retry:      DefaultRetryPolicy(),
		authHeader: cfg.AuthHeader,
		authValue:  cfg.AuthValue,
		limiter:    cfg.Limiter,
		limiterKey: cfg.LimiterKey,
	}
}

// Response is the parsed result of a round trip.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// DoJSON marshals body (if non-nil), issues the request against path
// (joined to the client's base URL), retries per RetryPolicy on transient
// statuses, and returns the raw response for the caller to decode. The
// caller — the adapter — owns translating StatusCode into the §7 error
// taxonomy via adapters.Result.
func (c *Client) DoJSON(ctx context.Context, method, path string, body any) (*Response, error) {
	var payload []byte
	var err error
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpkit: marshal request body: %w", err)
		}
		if len(payload) > MaxRequestSize {
			return nil, fmt.Errorf("httpkit: request body too large: %d bytes (max %d)", len(payload), MaxRequestSize)
		}
	}

	url := c.baseURL + path
	var resp *Response
	attempt := 0

	for {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, c.limiterKey); err != nil {
				return nil, fmt.Errorf("httpkit: rate limit wait: %w", err)
			}
		}

		resp, err = c.doOnce(ctx, method, url, payload)
		if err != nil {
			if attempt >= c.retry.MaxAttempts {
				return nil, err
			}
		} else {
			if c.limiter != nil && IsRateLimitStatus(resp.StatusCode) {
				c.limiter.BlockFor(ctx, c.limiterKey, retryAfter(resp.Header))
			}
			if !c.retry.ShouldRetry(resp.StatusCode, attempt) {
				return resp, nil
			}
		}

		wait := c.retry.Backoff(attempt)
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"method":  method,
			"url":     url,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Warnf("httpkit: retrying request")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte) (*Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("httpkit: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.authHeader != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Errorf("httpkit: request failed: %s %s", method, url)
		return nil, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, MaxResponseSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("httpkit: read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("httpkit: response body too large (max %d)", MaxResponseSize)
	}

	c.logger.WithContext(ctx).Debugf("httpkit: %s %s -> %d (%s)", method, url, resp.StatusCode, time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Body: data, Header: resp.Header}, nil
}

// retryAfter parses a 429 response's Retry-After header (seconds form),
// defaulting to 2 seconds when absent or malformed.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 2 * time.Second
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 2 * time.Second
	}
	return time.Duration(secs) * time.Second
}
