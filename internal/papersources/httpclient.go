package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/helixir/research-finder/internal/domain"
	"github.com/helixir/research-finder/internal/observability"
)

// DefaultUserAgent identifies the client to providers.
const DefaultUserAgent = "research-finder/1.0 (+https://github.com/helixir/research-finder)"

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Source is the provider this client talks to; used for errors and metrics.
	Source domain.SourceType

	// Timeout is the per-attempt request timeout.
	Timeout time.Duration

	// Limiter paces every attempt. Nil means unpaced.
	Limiter *RateLimiter

	// MaxRetries is the number of extra attempts after a 429, a 5xx or a
	// network error. Zero disables retries.
	MaxRetries int

	// RetryDelay is the delay between retries when the provider gives no
	// Retry-After.
	RetryDelay time.Duration

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// APIKey is an optional API key for authentication.
	APIKey string

	// APIKeyHeader is the header name for the API key (e.g., "x-api-key").
	APIKeyHeader string

	// Metrics records request outcomes. Nil disables recording.
	Metrics *observability.Metrics

	// Transport overrides the underlying round tripper.
	Transport http.RoundTripper
}

// HTTPClient wraps http.Client with rate limiting and retries.
// It is safe for concurrent use.
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// NewHTTPClient creates a new HTTP client.
// The client waits on the limiter before each attempt and retries on
// 429 (Too Many Requests), 5xx server errors and transport failures.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		config: cfg,
	}
}

// Source returns the provider this client is bound to.
func (c *HTTPClient) Source() domain.SourceType {
	return c.config.Source
}

// Do executes an HTTP request with rate limiting and retries.
//
// A 429 that survives every retry becomes a *domain.RateLimitError and a
// persistent 5xx a *domain.ExternalAPIError; other statuses are returned to
// the caller with the response. The request body is re-read through GetBody
// on retry.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	name := c.config.Source.DisplayName()

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.resetRequestBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
		}

		if err := c.acquire(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.config.Metrics.RecordSourceRequestFailed(string(c.config.Source), req.URL.Path, "network")
			lastErr = fmt.Errorf("%s request failed: %w", name, withoutQuery(err))
			if attempt < c.config.MaxRetries {
				if err := c.waitForRetry(ctx, c.config.RetryDelay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}
		c.config.Metrics.RecordSourceRequest(string(c.config.Source), req.URL.Path, elapsed)

		if !c.shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		retryDelay := c.getRetryDelay(resp)
		status := resp.StatusCode
		drain(resp)

		if status == http.StatusTooManyRequests {
			c.config.Metrics.RecordSourceRateLimited(string(c.config.Source))
			lastErr = domain.NewRateLimitError(name, retryDelay)
		} else {
			c.config.Metrics.RecordSourceRequestFailed(string(c.config.Source), req.URL.Path, strconv.Itoa(status))
			lastErr = domain.NewExternalAPIError(name, status, http.StatusText(status), nil)
		}

		if attempt == c.config.MaxRetries {
			break
		}
		// Waiting past the caller's deadline would only convert the
		// provider's answer into a timeout.
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < retryDelay {
			break
		}
		if err := c.waitForRetry(ctx, retryDelay); err != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("unexpected error: no response received")
}

func (c *HTTPClient) acquire(ctx context.Context) error {
	if c.config.Limiter == nil {
		return nil
	}
	waited, err := c.config.Limiter.Acquire(ctx)
	if waited > 0 {
		c.config.Metrics.RecordRateLimitWait(string(c.config.Source), waited.Seconds())
	}
	return err
}

// shouldRetry returns true if the status code indicates we should retry.
func (c *HTTPClient) shouldRetry(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode < 600
}

// getRetryDelay determines how long to wait before retrying.
// It respects the Retry-After header if present, otherwise uses the configured retry delay.
func (c *HTTPClient) getRetryDelay(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}

	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		delay := time.Until(t)
		if delay > 0 {
			return delay
		}
	}

	return c.config.RetryDelay
}

// waitForRetry waits for the specified duration, respecting context cancellation.
func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resetRequestBody resets the request body for retry if possible.
func (c *HTTPClient) resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}

func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
	}
}

// withoutQuery drops the query string from a *url.Error. Some providers take
// their credential as a query parameter.
func withoutQuery(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return &url.Error{Op: ue.Op, URL: "", Err: ue.Err}
	}
	u.RawQuery = ""
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}
