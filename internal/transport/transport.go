// Package transport sends outbound API requests with HTTP 429 backpressure
// handling. No other status is retried.
package transport

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kalambet/lnsync/internal/metrics"
)

const (
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	maxRetryAfter         = 30 * time.Second
)

// StatusError is a non-2xx response.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.Status, e.Body)
}

// RateLimitError is returned when every attempt came back 429.
type RateLimitError struct {
	Service  string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited after %d attempts", e.Service, e.Attempts)
}

// Client wraps an *http.Client for one named service.
type Client struct {
	Service        string
	HTTP           *http.Client
	MaxRetries     int
	InitialBackoff time.Duration
	// Wait runs before each attempt, e.g. a client-side rate limiter.
	Wait func(ctx context.Context) error
}

// New creates a Client with the given per-request timeout.
func New(service string, timeout time.Duration) *Client {
	return &Client{
		Service:        service,
		HTTP:           &http.Client{Timeout: timeout},
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
	}
}

// Do sends the request produced by build, rebuilding it for each attempt.
// On 2xx it returns the response with an open body. Other statuses are
// returned as *StatusError with the body consumed.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	attempts := c.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := range attempts {
		if c.Wait != nil {
			if err := c.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		start := time.Now()
		resp, err := c.HTTP.Do(req)
		if err != nil {
			metrics.RecordExternal(c.Service, 0, time.Since(start))
			return nil, fmt.Errorf("%s: executing request: %w", c.Service, err)
		}
		metrics.RecordExternal(c.Service, resp.StatusCode, time.Since(start))

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			if attempt == attempts-1 {
				break
			}
			if wait == 0 {
				wait = time.Duration(float64(c.InitialBackoff) * math.Pow(2, float64(attempt)))
			}
			metrics.ExternalRetries.WithLabelValues(c.Service).Inc()
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			resp.Body.Close()
			return nil, &StatusError{Service: c.Service, Status: resp.StatusCode, Body: string(body)}
		}
		return resp, nil
	}
	return nil, &RateLimitError{Service: c.Service, Attempts: attempts}
}

// retryAfter parses a Retry-After header in delta-seconds. HTTP-date values
// and garbage yield zero, which selects exponential backoff.
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	d := time.Duration(secs * float64(time.Second))
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
