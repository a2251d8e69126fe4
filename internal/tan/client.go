package tan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client is an HTTP client for the TAN open-data API.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	cache     *Cache // nil when caching is off
	logger    *slog.Logger
}

// NewClient creates a TAN API client. Requests time out after 5 seconds and
// are never retried. Responses are cached for cacheTTL; a TTL of zero
// disables the cache so every call reaches the API.
func NewClient(baseURL, userAgent string, cacheTTL time.Duration, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
	if cacheTTL > 0 {
		c.cache = NewCache(1024, cacheTTL)
	}
	return c
}

// WaitTimes fetches the live status of every line serving a stop.
func (c *Client) WaitTimes(ctx context.Context, stopCode string) ([]Status, error) {
	cacheKey := "wait:" + stopCode
	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			return cached.([]Status), nil
		}
	}

	u := fmt.Sprintf("%s/tempsattente.json/%s", c.baseURL, url.PathEscape(stopCode))
	resp, err := c.doGet(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("wait times for stop %s: %w", stopCode, err)
	}
	defer resp.Body.Close()

	var result []Status
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode wait times: %w", err)
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, result)
	}
	c.logger.Debug("wait times fetched", "stop", stopCode, "lines", len(result))
	return result, nil
}

func (c *Client) doGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return resp, nil
}
