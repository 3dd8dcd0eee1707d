package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pithecene-io/imagine/iox"
	"github.com/pithecene-io/imagine/log"
	"github.com/pithecene-io/imagine/types"
)

// pageEnvelope is the backend's paged response shape.
// A status:false body is the backend's soft-failure sentinel: the
// request worked at the HTTP level but produced no results.
type pageEnvelope struct {
	Status     bool                `json:"status"`
	Message    string              `json:"message,omitempty"`
	Items      []types.GalleryItem `json:"items"`
	Total      int                 `json:"total"`
	HasMore    *bool               `json:"has_more,omitempty"`
	NextOffset int                 `json:"next_offset,omitempty"`
}

// deleteEnvelope is the backend's delete response shape.
type deleteEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Client talks to the backend gallery endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// ClientConfig configures a gallery client.
type ClientConfig struct {
	// BaseURL is the backend base URL without a trailing slash. Required.
	BaseURL string
	// Timeout bounds each request. Zero means 30 seconds.
	Timeout time.Duration
	// Logger is optional.
	Logger *log.Logger
}

// NewClient creates a gallery client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gallery client requires a base URL")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger("")
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Recent fetches one page of recently generated images.
// A status:false body decodes to an empty page, not an error.
func (c *Client) Recent(ctx context.Context, offset, limit int) (types.Page, error) {
	u := fmt.Sprintf("%s/api/image/recent-images?%s", c.baseURL, pagingQuery(offset, limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.Page{}, fmt.Errorf("failed to build recent request: %w", err)
	}
	return c.doPage(req)
}

// Related fetches one page of images related to a query.
// A status:false body decodes to an empty page, not an error.
func (c *Client) Related(ctx context.Context, query types.RelatedQuery, offset, limit int) (types.Page, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return types.Page{}, fmt.Errorf("failed to encode related query: %w", err)
	}

	u := fmt.Sprintf("%s/api/image/related-images?%s", c.baseURL, pagingQuery(offset, limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return types.Page{}, fmt.Errorf("failed to build related request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doPage(req)
}

// Delete removes an image by ID on the backend.
// Unlike page fetches, delete failures propagate: the caller must know
// whether local state may drop the item.
func (c *Client) Delete(ctx context.Context, imageID string) error {
	if imageID == "" {
		return fmt.Errorf("delete requires an image ID")
	}

	u := fmt.Sprintf("%s/api/image/delete?imageId=%s", c.baseURL, url.QueryEscape(imageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete rejected: status %d", resp.StatusCode)
	}

	var env deleteEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode delete response: %w", err)
	}
	if !env.Success {
		if env.Message != "" {
			return fmt.Errorf("delete failed: %s", env.Message)
		}
		return fmt.Errorf("delete failed")
	}
	return nil
}

// doPage executes a page request and decodes the envelope.
func (c *Client) doPage(req *http.Request) (types.Page, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return types.Page{}, fmt.Errorf("page request failed: %w", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.Page{}, fmt.Errorf("page request rejected: status %d", resp.StatusCode)
	}

	var env pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return types.Page{}, fmt.Errorf("failed to decode page response: %w", err)
	}

	if !env.Status {
		c.logger.Debug("backend returned empty-result sentinel", map[string]any{
			"message": env.Message,
		})
		return types.EmptyPage(), nil
	}

	return types.Page{
		Items:      env.Items,
		Total:      env.Total,
		HasMore:    env.HasMore,
		NextOffset: env.NextOffset,
	}, nil
}

// pagingQuery builds the offset/limit query string.
func pagingQuery(offset, limit int) string {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return q.Encode()
}
