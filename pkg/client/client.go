// Package client provides the Airtable HTTP client used to read table pages.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/Sternrassler/airtable-record-counter/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Airtable client operations.
var (
	airtableRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airtable_requests_total",
		Help: "Total Airtable page requests by status",
	}, []string{"status"})

	airtableRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "airtable_request_duration_seconds",
		Help:    "Airtable page request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	airtableErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airtable_errors_total",
		Help: "Total Airtable errors by class",
	}, []string{"class"})
)

// Page is one page of a table listing. Record contents are never inspected.
type Page struct {
	Records []json.RawMessage `json:"records"`
	Offset  string            `json:"offset,omitempty"`
}

// Client fetches table pages from Airtable.
type Client struct {
	httpClient *http.Client
	throttle   *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent with every request
	UserAgent string

	// Timeout bounds a single page request
	Timeout time.Duration

	// Throttle gates requests during Airtable penalty windows (optional)
	Throttle *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		UserAgent: "airtable-record-counter/0.1.0",
		Timeout:   30 * time.Second,
	}
}

// New creates a new Airtable client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		throttle: cfg.Throttle,
		config:   cfg,
		logger:   log.With().Str("component", "airtable-client").Logger(),
	}, nil
}

// FetchPage performs exactly one GET against a table endpoint. The offset
// query parameter is sent only when offset is non-empty. A non-success
// status is returned as *UpstreamError carrying the raw body.
func (c *Client) FetchPage(ctx context.Context, endpoint, token, offset string) (*Page, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	scope := throttleScope(u)
	if err := c.checkThrottle(ctx, scope); err != nil {
		return nil, err
	}

	if offset != "" {
		q := u.Query()
		q.Set("offset", offset)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	airtableRequestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		errClass := c.classifyError(nil, err)
		airtableErrorsTotal.WithLabelValues(string(errClass)).Inc()
		airtableRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		airtableErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	airtableRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	c.logger.Debug().
		Str("url", u.String()).
		Int("status", resp.StatusCode).
		Msg("HTTP GET")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := c.classifyError(resp, nil)
		airtableErrorsTotal.WithLabelValues(string(errClass)).Inc()

		if errClass == ErrorClassRateLimit && c.throttle != nil {
			if _, err := c.throttle.RecordThrottle(ctx, scope, resp.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record throttle window")
			}
		}

		c.logger.Error().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Str("body", string(body)).
			Msg("Airtable API request failed")

		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Body:       string(body),
		}
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	return &page, nil
}

// checkThrottle short-circuits requests while a penalty window is open.
// Redis failures are logged and the request proceeds.
func (c *Client) checkThrottle(ctx context.Context, scope string) error {
	if c.throttle == nil {
		return nil
	}

	allowed, wait, err := c.throttle.ShouldAllowRequest(ctx, scope)
	if err != nil {
		c.logger.Warn().Err(err).Str("scope", scope).Msg("Throttle check failed")
		return nil
	}
	if !allowed {
		airtableRequestsTotal.WithLabelValues("throttled").Inc()
		return &ratelimit.BlockedError{Scope: scope, RetryIn: wait}
	}

	return nil
}

// classifyError categorizes an error for observability.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	var class ErrorClass
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		class = ErrorClassRateLimit
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		class = ErrorClassAuth
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		class = ErrorClassClient
	case resp.StatusCode >= 500:
		class = ErrorClassServer
	default:
		return ""
	}

	c.logger.Debug().Str("class", string(class)).Msg("Error classified")
	return class
}

// throttleScope maps a table URL to its base, e.g.
// https://api.airtable.com/v0/appABC/tblXYZ -> api.airtable.com/v0/appABC.
func throttleScope(u *url.URL) string {
	return u.Host + path.Dir(path.Clean("/"+u.Path))
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
