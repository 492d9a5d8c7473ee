package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/GhUserLiu/paperflow/internal/domain"
	"github.com/GhUserLiu/paperflow/internal/retry"
)

// HTTPClientConfig configures the shared discovery HTTP client.
type HTTPClientConfig struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration

	// RateLimit is the sustained request rate per second against the API.
	RateLimit float64

	// BurstSize is the token-bucket burst size.
	BurstSize int

	// UserAgent is sent with every request.
	UserAgent string

	// APIKey and APIKeyHeader optionally authenticate requests.
	APIKey       string
	APIKeyHeader string

	// Policy is the retry policy for transient failures.
	Policy retry.Policy
}

func (c *HTTPClientConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimit == 0 {
		c.RateLimit = 3
	}
	if c.BurstSize == 0 {
		c.BurstSize = 3
	}
	if c.UserAgent == "" {
		c.UserAgent = "paperflow/1.0"
	}
	if c.Policy.MaxAttempts == 0 {
		c.Policy = retry.DefaultPolicy()
	}
}

// HTTPClient is the rate-limited, retrying HTTP client shared by all
// discovery source and metrics lookup clients. Discovery APIs use
// conventional token-bucket limits (a few requests per second), unlike the
// bibliography store's rolling-window quota. Safe for concurrent use.
type HTTPClient struct {
	name    string
	client  *http.Client
	limiter *rate.Limiter
	cfg     HTTPClientConfig
}

// NewHTTPClient creates a client for the named external API.
func NewHTTPClient(name string, cfg HTTPClientConfig) *HTTPClient {
	cfg.applyDefaults()
	return &HTTPClient{
		name:    name,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.BurstSize),
		cfg:     cfg,
	}
}

// Get performs a rate-limited GET and returns the response body. Transient
// failures (network errors, 429, 5xx) are retried per the policy; other
// non-2xx statuses fail immediately as domain.ExternalAPIError.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, "")
}

// PostJSON performs a rate-limited POST with a JSON payload and returns the
// response body, with the same retry semantics as Get.
func (c *HTTPClient) PostJSON(ctx context.Context, rawURL string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode payload: %w", c.name, err)
	}
	return c.do(ctx, http.MethodPost, rawURL, data, "application/json")
}

func (c *HTTPClient) do(ctx context.Context, method, rawURL string, payload []byte, contentType string) ([]byte, error) {
	var body []byte
	err := c.cfg.Policy.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return fmt.Errorf("%s: build request: %w", c.name, err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.cfg.APIKey != "" && c.cfg.APIKeyHeader != "" {
			req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("%s: %w: %v", c.name, domain.ErrUnavailable, err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return domain.NewExternalAPIError(c.name, resp.StatusCode, http.StatusText(resp.StatusCode), nil)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s: read body: %w: %v", c.name, domain.ErrUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
