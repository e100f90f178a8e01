// Package client provides the HTTP client used to call the Star Wars catalog
// API, with request pacing, a shared error budget, retries and metrics.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/ratelimit"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for upstream calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swapi_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Client is the catalog API client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	budget     *ratelimit.Tracker
	retry      RetryConfig
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root; relative paths passed to Get are joined to it.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Redis enables the shared upstream error budget when non-nil.
	Redis *redis.Client

	// ErrorBudget sizes the failure window when Redis is set.
	ErrorBudget ratelimit.Config

	// RateLimit is the outbound requests per second, 0 for unlimited.
	RateLimit int

	// MaxConcurrency is the limiter burst.
	MaxConcurrency int

	// Timeout bounds a single upstream round trip.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultConfig returns a configuration that talks to the public API without
// retries or an error budget.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:        swapi.DefaultBaseURL,
		UserAgent:      userAgent,
		ErrorBudget:    ratelimit.DefaultConfig(),
		RateLimit:      20,
		MaxConcurrency: 16,
		Timeout:        30 * time.Second,
		MaxRetries:     0,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("base url must be an absolute http(s) url (got %q)", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %d)", cfg.RateLimit)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("swapi-client")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	var budget *ratelimit.Tracker
	if cfg.Redis != nil {
		budget = ratelimit.NewTracker(cfg.Redis, logger, cfg.ErrorBudget)
	}

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries + 1
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, cfg.MaxConcurrency),
		budget:  budget,
		retry:   retry,
		config:  cfg,
		logger:  logger,
	}, nil
}

// budgetUnavailable labels errorsTotal when the error budget store cannot be read.
const budgetUnavailable = "budget_unavailable"

// Do performs a request with error budget gating, pacing and retries.
// Any non-2xx response is returned as an *UpstreamError; on success the caller
// owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	target := req.URL.String()
	endpoint := endpointLabel(req.URL)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	allowed, err := c.budget.ShouldAllowRequest(ctx)
	if err != nil {
		// Budget store unavailable: fail open.
		errorsTotal.WithLabelValues(budgetUnavailable).Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Error budget check failed, allowing request")
		allowed = true
	}
	if !allowed {
		c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by error budget")
		requestsTotal.WithLabelValues(endpoint, "budget_blocked").Inc()
		return nil, &UpstreamError{
			URL:        target,
			ErrorClass: ErrorClassRateLimit,
			Message:    "request blocked",
			Err:        ErrBudgetExhausted,
		}
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("url", target).
		Str("method", req.Method).
		Msg("Executing upstream request")

	var resp *http.Response
	retryErr := retryWithBackoff(ctx, c.retry, func() (ErrorClass, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", &UpstreamError{
				URL:        target,
				ErrorClass: ErrorClassNetwork,
				Message:    "rate limiter wait",
				Err:        err,
			}
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			// A cancelled caller is not an upstream fault.
			if ctx.Err() != nil {
				return "", &UpstreamError{URL: target, ErrorClass: ErrorClassNetwork, Message: "request cancelled", Err: err}
			}
			errClass := c.classifyError(nil, err)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			c.recordFailure(ctx)
			c.logger.Error().Err(err).Str("url", target).Msg("Upstream request failed")
			return errClass, &UpstreamError{URL: target, ErrorClass: errClass, Message: "request failed", Err: err}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode < 200 || r.StatusCode >= 300 {
			errClass := c.classifyError(r, nil)
			errorsTotal.WithLabelValues(string(errClass)).Inc()
			c.recordFailure(ctx)

			c.logger.Warn().
				Str("url", target).
				Int("status", r.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Upstream request error")

			_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64<<10))
			r.Body.Close()
			return errClass, &UpstreamError{
				URL:        target,
				StatusCode: r.StatusCode,
				ErrorClass: errClass,
				Message:    r.Status,
			}
		}

		resp = r
		return "", nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return resp, nil
}

// recordFailure charges the shared error budget; budget errors are only logged.
func (c *Client) recordFailure(ctx context.Context) {
	if err := c.budget.RecordFailure(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record upstream failure")
	}
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		// 1xx/3xx that the transport did not follow
		return ErrorClassClient
	}
}

// Get performs a GET request. rawURL is either absolute (as embedded in
// catalog records) or a path relative to the configured base URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	target, err := c.ResolveURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// GetJSON performs a GET and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &UpstreamError{
			URL:        resp.Request.URL.String(),
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode response",
			Err:        err,
		}
	}
	return nil
}

// ResolveURL turns a relative path into an absolute URL under the base URL and
// validates absolute URLs.
func (c *Client) ResolveURL(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "/") {
		return c.config.BaseURL + rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", errInvalidURL, rawURL)
	}
	return rawURL, nil
}

var errInvalidURL = errors.New("not an absolute http(s) url")

// BaseURL returns the configured API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Ping reports whether the error budget store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.budget.Ping(ctx)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// endpointLabel reduces a URL to its collection name ("people", "planets")
// to keep metric cardinality bounded.
func endpointLabel(u *url.URL) string {
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" || seg == "api" {
			continue
		}
		return seg
	}
	return "root"
}
