// Package firecrawl is the HTTP client for the remote discovery (map) and
// batch-scrape endpoints. All calls retry transient failures with jittered
// exponential backoff before surfacing an error.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the hosted API endpoint.
const DefaultBaseURL = "https://api.firecrawl.dev"

// maxErrorBodyBytes bounds how much of an error response is kept for messages.
const maxErrorBodyBytes = 512

// Config controls client behavior.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each HTTP request.
	Timeout time.Duration
	// IncludeSubdomains and IgnoreQueryParameters are discovery scope flags.
	IncludeSubdomains     bool
	IgnoreQueryParameters bool
}

// Client talks to the remote API.
type Client struct {
	cfg    Config
	http   *http.Client
	retry  *ExponentialRetryPolicy
	logger *zap.Logger
}

// New builds a Client. A nil retry policy gets defaults; a nil logger is
// replaced with a no-op.
func New(cfg Config, retry *ExponentialRetryPolicy, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("firecrawl api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if retry == nil {
		retry = NewExponentialRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		retry:  retry,
		logger: logger,
	}, nil
}

// Map calls the discovery endpoint and returns the site's full current
// resource list. The response is a replacement set, not a delta. ignoreCache
// asks the provider to bypass its own cached sitemap data.
func (c *Client) Map(ctx context.Context, rootURL string, limit int, ignoreCache bool) ([]string, error) {
	payload := mapRequest{
		URL:                   rootURL,
		IncludeSubdomains:     c.cfg.IncludeSubdomains,
		IgnoreQueryParameters: c.cfg.IgnoreQueryParameters,
		Limit:                 limit,
		IgnoreCache:           ignoreCache,
	}
	var resp mapResponse
	if err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/map", payload, &resp); err != nil {
		return nil, fmt.Errorf("map %s: %w", rootURL, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("map %s: api returned success=false", rootURL)
	}
	return resp.Links, nil
}

// SubmitBatch creates a batch scrape job for the given URLs and returns the
// opaque job handle.
func (c *Client) SubmitBatch(ctx context.Context, urls []string) (string, error) {
	payload := batchSubmitRequest{
		URLs: urls,
		Formats: []any{
			"markdown",
			jsonFormat{Type: "json", Prompt: extractPrompt, Schema: extractSchema()},
		},
		OnlyMainContent:    true,
		ExcludeTags:        excludedTags,
		RemoveBase64Images: true,
		BlockAds:           true,
	}
	var resp batchSubmitResponse
	if err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/batch/scrape", payload, &resp); err != nil {
		return "", fmt.Errorf("submit batch: %w", err)
	}
	if !resp.Success || resp.ID == "" {
		return "", fmt.Errorf("submit batch: api returned no job handle")
	}
	return resp.ID, nil
}

// BatchStatus polls a batch job and returns its status plus the first page of
// any available results.
func (c *Client) BatchStatus(ctx context.Context, handle string) (BatchStatus, error) {
	var resp BatchStatus
	if err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/batch/scrape/"+handle, nil, &resp); err != nil {
		return BatchStatus{}, fmt.Errorf("poll batch %s: %w", handle, err)
	}
	return resp, nil
}

// BatchPage fetches one continuation page of batch results. pageURL is the
// opaque `next` locator returned by the provider.
func (c *Client) BatchPage(ctx context.Context, pageURL string) (BatchPage, error) {
	var resp BatchPage
	if err := c.do(ctx, http.MethodGet, pageURL, nil, &resp); err != nil {
		return BatchPage{}, fmt.Errorf("fetch batch page: %w", err)
	}
	return resp, nil
}

// do executes one API call with retries, decoding a JSON response into out.
func (c *Client) do(ctx context.Context, method, url string, payload, out any) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.doOnce(ctx, method, url, payload, out)
		if lastErr == nil {
			return nil
		}
		if !c.retry.ShouldRetry(lastErr, attempt) {
			return lastErr
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Warn("retrying api call",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &APIError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
