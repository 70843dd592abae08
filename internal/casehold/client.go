package casehold

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/ranktune/internal/retry"
)

const (
	// DefaultBaseURL is the public dataset hub rows endpoint.
	DefaultBaseURL = "https://datasets-server.huggingface.co"

	// DefaultPageSize is also the server-side maximum page length.
	DefaultPageSize = 100
)

// Config holds configuration for the rows API client.
type Config struct {
	// BaseURL of the datasets server.
	BaseURL string

	// Token is an optional hub access token for gated datasets.
	Token string

	// Timeout for a single page request.
	Timeout time.Duration

	// PageSize is the number of rows requested per page, capped at the
	// server maximum of 100.
	PageSize int

	// MaxAttempts bounds retries for a page request.
	MaxAttempts int
}

// Client fetches corpus rows from the dataset hub rows API.
type Client struct {
	config     *Config
	httpClient *http.Client
	retryCfg   retry.Config
}

// NewClient creates a rows API client with defaults applied.
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.PageSize <= 0 || config.PageSize > DefaultPageSize {
		config.PageSize = DefaultPageSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retryCfg:   retry.Exponential(config.MaxAttempts, 500*time.Millisecond, 5*time.Second),
	}
}

// FetchOptions selects which rows to fetch.
type FetchOptions struct {
	// Dataset is the hub dataset id, e.g. "casehold/casehold".
	Dataset string
	// Config is the dataset configuration name, e.g. "casehold".
	Config string
	// Split is the source split to read, e.g. "train".
	Split string
	// Limit is the number of rows to take from the head of the split.
	Limit int
}

type rowEnvelope struct {
	RowIdx int `json:"row_idx"`
	Row    Row `json:"row"`
}

type rowsResponse struct {
	Rows         []rowEnvelope `json:"rows"`
	NumRowsTotal int           `json:"num_rows_total"`
}

// Fetch returns the first opts.Limit rows of the split in upstream order,
// paging as needed. A malformed row aborts the fetch; skipping rows would
// silently shrink the corpus. Fewer rows than the limit are returned only
// when the split itself is shorter.
func (c *Client) Fetch(ctx context.Context, opts FetchOptions) ([]Row, error) {
	if strings.TrimSpace(opts.Dataset) == "" {
		return nil, fmt.Errorf("dataset is required")
	}
	if strings.TrimSpace(opts.Config) == "" {
		return nil, fmt.Errorf("dataset config is required")
	}
	if strings.TrimSpace(opts.Split) == "" {
		return nil, fmt.Errorf("split is required")
	}
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", opts.Limit)
	}

	rows := make([]Row, 0, opts.Limit)
	for len(rows) < opts.Limit {
		length := c.config.PageSize
		if remaining := opts.Limit - len(rows); remaining < length {
			length = remaining
		}

		page, result := retry.DoWithValue(ctx, c.retryCfg, func() (*rowsResponse, error) {
			return c.fetchPage(ctx, opts, len(rows), length)
		})
		if result.Err != nil {
			return nil, fmt.Errorf("fetch rows at offset %d: %w", len(rows), result.Err)
		}

		for _, env := range page.Rows {
			if err := env.Row.Validate(); err != nil {
				return nil, fmt.Errorf("row %d: %w", env.RowIdx, err)
			}
			rows = append(rows, env.Row)
		}

		if len(page.Rows) < length {
			// Split exhausted before the limit.
			break
		}
	}
	return rows, nil
}

func (c *Client) fetchPage(ctx context.Context, opts FetchOptions, offset, length int) (*rowsResponse, error) {
	pageURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("invalid base URL: %w", err))
	}
	pageURL.Path = "/rows"

	query := url.Values{}
	query.Set("dataset", opts.Dataset)
	query.Set("config", opts.Config)
	query.Set("split", opts.Split)
	query.Set("offset", strconv.Itoa(offset))
	query.Set("length", strconv.Itoa(length))
	pageURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		pageErr := fmt.Errorf("datasets server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, pageErr
		}
		return nil, retry.Permanent(pageErr)
	}

	var page rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	return &page, nil
}
