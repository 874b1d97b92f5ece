// Package websearch talks to the auxiliary search and article scraping services.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrUpstream is returned when an auxiliary service is unreachable or replies
// with something other than a 2xx JSON object.
var ErrUpstream = errors.New("upstream service failure")

// DefaultTimeout bounds one auxiliary call when Options.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Options configure a Client. Base URLs must not carry a trailing slash.
type Options struct {
	SearchBaseURL  string
	ScraperBaseURL string
	Timeout        time.Duration
}

// Client queries the search engine and the article scraper.
type Client struct {
	http       *resty.Client
	searchURL  string
	scraperURL string
	timeout    time.Duration
	logger     *zap.Logger
}

// New returns a Client. Every call is bounded by opts.Timeout on top of the caller's context.
func New(httpClient *resty.Client, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		http:       httpClient,
		searchURL:  opts.SearchBaseURL + "/search",
		scraperURL: opts.ScraperBaseURL + "/api/article",
		timeout:    opts.Timeout,
		logger:     logger.Named("websearch"),
	}
}

// Search runs query against the search engine and returns its JSON reply.
func (c *Client) Search(ctx context.Context, query string) (map[string]any, error) {
	return c.getJSON(ctx, "search", c.searchURL, map[string]string{
		"q":      query,
		"format": "json",
	})
}

// Scrape asks the scraper to extract the article at pageURL.
func (c *Client) Scrape(ctx context.Context, pageURL string) (map[string]any, error) {
	return c.getJSON(ctx, "scrape", c.scraperURL, map[string]string{"url": pageURL})
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, params map[string]string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeader("Accept", "application/json").
		Get(endpoint)
	if err != nil {
		c.logger.Warn("auxiliary request failed", zap.String("op", op), zap.Error(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
	}
	if !resp.IsSuccess() {
		c.logger.Warn("auxiliary service returned error",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode()),
		)
		return nil, fmt.Errorf("%s: %w: status %d", op, ErrUpstream, resp.StatusCode())
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%s: %w: decode: %w", op, ErrUpstream, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s: %w: reply is not an object", op, ErrUpstream)
	}
	return out, nil
}
