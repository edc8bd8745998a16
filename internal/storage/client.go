// Package storage implements the storage catalog collaborator: an HTTP
// storage API client and a catalog read from the warehouse's own schema.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"branchcheck/internal/domain"
)

// TokenHeader carries the storage API token.
const TokenHeader = "X-StorageApi-Token"

// Compile-time check.
var _ domain.StorageCatalog = (*Client)(nil)

// APIError is a non-2xx response from the storage API.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage API %s: HTTP %d: %s", e.Path, e.StatusCode, e.Body)
}

// ClientOptions tunes a Client.
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// Client calls the storage API. Every request waits on a token-bucket limiter.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a storage API client. A zero RequestsPerSecond disables throttling.
func NewClient(baseURL, token string, opts ClientOptions) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// flexID accepts ids encoded as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type branchJSON struct {
	ID   flexID `json:"id"`
	Name string `json:"name"`
}

type bucketJSON struct {
	ID    flexID `json:"id"`
	Name  string `json:"name"`
	Stage string `json:"stage"`
}

type tableJSON struct {
	ID     flexID `json:"id"`
	Name   string `json:"name"`
	Bucket *struct {
		ID flexID `json:"id"`
	} `json:"bucket"`
}

// ListBranches returns the development branches.
func (c *Client) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	var raw []branchJSON
	if err := c.get(ctx, "/v2/storage/dev-branches", &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Branch, 0, len(raw))
	for _, b := range raw {
		out = append(out, domain.Branch{ID: string(b.ID), Name: b.Name})
	}
	return out, nil
}

// ListBuckets returns every bucket visible to the token.
func (c *Client) ListBuckets(ctx context.Context) ([]domain.Bucket, error) {
	var raw []bucketJSON
	if err := c.get(ctx, "/v2/storage/buckets", &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Bucket, 0, len(raw))
	for _, b := range raw {
		out = append(out, domain.Bucket{ID: string(b.ID), Name: b.Name, Stage: b.Stage})
	}
	return out, nil
}

// ListTables returns the tables in bucketID.
func (c *Client) ListTables(ctx context.Context, bucketID string) ([]domain.Table, error) {
	var raw []tableJSON
	if err := c.get(ctx, "/v2/storage/buckets/"+url.PathEscape(bucketID)+"/tables", &raw); err != nil {
		return nil, err
	}
	out := make([]domain.Table, 0, len(raw))
	for _, t := range raw {
		tbl := domain.Table{ID: string(t.ID), Name: t.Name, BucketID: bucketID}
		if t.Bucket != nil && t.Bucket.ID != "" {
			tbl.BucketID = string(t.Bucket.ID)
		}
		if tbl.Name == "" {
			tbl.Name = domain.TableName(tbl.ID)
		}
		out = append(out, tbl)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("storage API %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(TokenHeader, c.Token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage API %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("storage API call", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
