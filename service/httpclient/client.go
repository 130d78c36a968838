package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/walletexport/service/metrics"
	"golang.org/x/time/rate"
	"resty.dev/v3"
)

// Config configures a Client for one external API.
type Config struct {
	API           string            // label used in logs and metrics, e.g. "etherscan"
	Timeout       time.Duration     // per-request timeout
	RatePerSecond float64           // 0 disables limiting
	Headers       map[string]string // sent with every request
	UserAgent     string
}

// Client is a thin JSON-over-HTTP client. Every call is a single attempt:
// retries are deliberately disabled and failures surface to the caller.
type Client struct {
	client  *resty.Client
	limiter *rate.Limiter
	api     string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status code %d from %s", e.Code, e.URL)
}

// New creates a Client. If m is nil, no metrics are recorded.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	restyClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
			if err := limiter.Wait(r.Context()); err != nil {
				logger.Warn("rate limiter wait failed", "api", cfg.API, "error", err)
				return err
			}
			if cfg.UserAgent != "" {
				r.SetHeader("User-Agent", cfg.UserAgent)
			}
			for k, v := range cfg.Headers {
				r.SetHeader(k, v)
			}
			logger.Debug("outgoing request", "api", cfg.API, "url", r.URL)
			return nil
		})

	return &Client{
		client:  restyClient,
		limiter: limiter,
		api:     cfg.API,
		metrics: m,
		logger:  logger,
	}
}

// GetJSON issues a GET and decodes a 2xx body into out. The body is decoded
// as JSON whatever the Content-Type; a body that is not JSON is an error.
func (c *Client) GetJSON(ctx context.Context, url string, query map[string]string, out any) error {
	start := time.Now()
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(url)
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordHTTPRequest(c.api, 0, duration)
		}
		c.logger.WarnContext(ctx, "HTTP GET request failed", "api", c.api, "url", url, "error", err)
		return fmt.Errorf("%s request failed: %w", c.api, err)
	}

	if c.metrics != nil {
		c.metrics.RecordHTTPRequest(c.api, resp.StatusCode(), duration)
	}

	if resp.StatusCode() >= 400 {
		c.logger.WarnContext(ctx, "HTTP request failed", "api", c.api, "status", resp.StatusCode(), "url", url)
		return &StatusError{Code: resp.StatusCode(), URL: url}
	}

	if err := json.Unmarshal(resp.Bytes(), out); err != nil {
		c.logger.WarnContext(ctx, "HTTP response is not JSON",
			"api", c.api,
			"url", url,
			"content_type", resp.Header().Get("Content-Type"),
			"error", err,
		)
		return fmt.Errorf("%s returned an undecodable body: %w", c.api, err)
	}
	return nil
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.client.Close()
}
