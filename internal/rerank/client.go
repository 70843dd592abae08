// Package rerank is a client for the hosted rerank API. It scores a set of
// candidate passages against a query and returns them ordered by relevance,
// which is all a choose-one-of-five evaluation needs.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/ranktune/internal/observability"
	"github.com/haasonsaas/ranktune/internal/ratelimit"
	"github.com/haasonsaas/ranktune/internal/retry"
)

const (
	// DefaultBaseURL is the hosted rerank API endpoint.
	DefaultBaseURL = "https://api.cohere.com"

	// rerankPath is the rerank endpoint path under the base URL.
	rerankPath = "/v1/rerank"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// Config holds configuration for the rerank API client.
type Config struct {
	// BaseURL of the rerank API.
	BaseURL string

	// APIKey authenticates requests. Required.
	APIKey string

	// Timeout for a single request attempt.
	Timeout time.Duration

	// MaxAttempts bounds retries for a request.
	MaxAttempts int

	// RequestsPerMinute throttles outbound requests client-side. Trial
	// keys are metered per minute; zero disables throttling.
	RequestsPerMinute float64
}

// Request is one rerank call: score the documents against the query and
// return the TopN most relevant.
type Request struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

// Result is one scored document. Index refers to the position of the
// document in the request.
type Result struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Response is the rerank API reply, results ordered most relevant first.
type Response struct {
	ID      string   `json:"id"`
	Results []Result `json:"results"`
}

// Client calls the rerank API with retries and optional client-side rate
// limiting.
type Client struct {
	config     *Config
	httpClient *http.Client
	retryCfg   retry.Config
	limiter    *ratelimit.Bucket
	metrics    *observability.Metrics
}

// NewClient creates a rerank API client with defaults applied. metrics may
// be nil.
func NewClient(config *Config, metrics *observability.Metrics) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}

	var limiter *ratelimit.Bucket
	if config.RequestsPerMinute > 0 {
		limiter = ratelimit.NewBucket(ratelimit.Config{
			RequestsPerMinute: config.RequestsPerMinute,
		})
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retryCfg:   retry.Exponential(config.MaxAttempts, time.Second, 15*time.Second),
		limiter:    limiter,
		metrics:    metrics,
	}
}

// Rerank scores req.Documents against req.Query. Transient failures (rate
// limits, server faults, transport errors) are retried with backoff; a
// malformed request or response fails immediately.
func (c *Client) Rerank(ctx context.Context, req *Request) (*Response, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode rerank request: %w", err)
	}

	resp, result := retry.DoWithValue(ctx, c.retryCfg, func() (*Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, retry.Permanent(err)
			}
		}
		return c.doRequest(ctx, payload, req.Model, len(req.Documents))
	})
	if result.Err != nil {
		return nil, fmt.Errorf("rerank with %s after %d attempt(s): %w", req.Model, result.Attempts, result.Err)
	}
	return resp, nil
}

func (c *Client) validate(req *Request) error {
	if req == nil {
		return fmt.Errorf("rerank request is nil")
	}
	if c.config.APIKey == "" {
		return fmt.Errorf("rerank api key is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return fmt.Errorf("rerank model is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("rerank query is empty")
	}
	if len(req.Documents) == 0 {
		return fmt.Errorf("rerank request has no documents")
	}
	if req.TopN < 0 {
		return fmt.Errorf("top_n must be non-negative, got %d", req.TopN)
	}
	return nil
}

// doRequest performs one attempt. Errors returned plain are retried by the
// caller; errors that another attempt cannot fix are marked permanent.
func (c *Client) doRequest(ctx context.Context, payload []byte, model string, documents int) (*Response, error) {
	start := time.Now()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+rerankPath, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(model, "error", start)
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		c.record(model, "error", start)
		return nil, fmt.Errorf("read rerank response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		c.record(model, "error", start)
		apiErr := newAPIError(httpResp.StatusCode, body)
		if apiErr.Retryable() {
			return nil, apiErr
		}
		return nil, retry.Permanent(apiErr)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		c.record(model, "error", start)
		return nil, retry.Permanent(fmt.Errorf("decode rerank response: %w", err))
	}
	if len(resp.Results) == 0 {
		c.record(model, "error", start)
		return nil, retry.Permanent(fmt.Errorf("rerank response has no results"))
	}
	for _, result := range resp.Results {
		if result.Index < 0 || result.Index >= documents {
			c.record(model, "error", start)
			return nil, retry.Permanent(fmt.Errorf("rerank result index %d out of range [0,%d)", result.Index, documents))
		}
	}

	c.record(model, "success", start)
	return &resp, nil
}

func (c *Client) record(model, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordRerankRequest(model, status, time.Since(start).Seconds())
	}
}
