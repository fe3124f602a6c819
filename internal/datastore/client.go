package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultPageSize is the number of records requested per scan page
	DefaultPageSize = 1000
)

// Client talks to the record store and catalog action API
type Client struct {
	apiKey     string
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// APIResponse represents a generic action API response
type APIResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// APIError represents an error response from the API
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"__type,omitempty"`
}

// Error implements the error interface for APIError
func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s (type: %s)", e.Message, e.Type)
	}
	return e.Message
}

type scanRequest struct {
	ResourceID string         `json:"resource_id"`
	Version    int64          `json:"version"`
	Query      map[string]any `json:"query"`
	Size       int            `json:"size"`
	After      any            `json:"after,omitempty"`
}

type scanPage struct {
	Records []Record `json:"records"`
	After   any      `json:"after"`
}

type schemaRequest struct {
	ResourceID string         `json:"resource_id"`
	Version    int64          `json:"version"`
	Query      map[string]any `json:"query"`
}

type roundRequest struct {
	ResourceID string `json:"resource_id"`
	Version    int64  `json:"version"`
}

// New creates a new record store client
func New(baseURL, apiKey string) *Client {
	return &Client{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: DefaultPageSize,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// call invokes an action and decodes its result into out. A nil body makes a GET
// request with params in the query string.
func (c *Client) call(ctx context.Context, action string, params url.Values, body any, out any) error {
	endpoint := fmt.Sprintf("%s/action/%s", c.baseURL, action)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	method := http.MethodGet
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		method = http.MethodPost
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", action, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API request failed with status %d", resp.StatusCode)
	}

	var apiResp APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !apiResp.Success {
		if apiResp.Error != nil {
			if apiResp.Error.Type == "Not Found Error" {
				return fmt.Errorf("%s: %w", apiResp.Error.Message, ErrNotFound)
			}
			return apiResp.Error
		}
		return fmt.Errorf("API call %s was not successful", action)
	}

	if out == nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(apiResp.Result))
	// keep numbers exact so ints and floats can be told apart downstream
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", action, err)
	}
	return nil
}

// Scan streams matching records page by page using the store's search_after cursor
func (c *Client) Scan(ctx context.Context, resourceID string, version int64, filter map[string]any, fn func(Record) error) error {
	req := scanRequest{
		ResourceID: resourceID,
		Version:    version,
		Query:      filter,
		Size:       c.pageSize,
	}

	for {
		var page scanPage
		if err := c.call(ctx, "datastore_scan", nil, req, &page); err != nil {
			return fmt.Errorf("failed to scan resource %s: %w", resourceID, err)
		}

		for _, record := range page.Records {
			if err := fn(record); err != nil {
				return err
			}
		}

		if page.After == nil || len(page.Records) == 0 {
			return nil
		}
		req.After = page.After
	}
}

// FieldSchema describes the fields of the records matching the filter
func (c *Client) FieldSchema(ctx context.Context, resourceID string, version int64, filter map[string]any) ([]FieldInfo, error) {
	var infos []FieldInfo
	req := schemaRequest{ResourceID: resourceID, Version: version, Query: filter}
	if err := c.call(ctx, "datastore_field_schema", nil, req, &infos); err != nil {
		return nil, fmt.Errorf("failed to get field schema for %s: %w", resourceID, err)
	}
	return infos, nil
}

// RoundedVersion rounds target down to the newest committed version of the resource
func (c *Client) RoundedVersion(ctx context.Context, resourceID string, target int64) (int64, bool, error) {
	var version *json.Number
	req := roundRequest{ResourceID: resourceID, Version: target}
	if err := c.call(ctx, "datastore_get_rounded_version", nil, req, &version); err != nil {
		return 0, false, fmt.Errorf("failed to round version for %s: %w", resourceID, err)
	}
	if version == nil {
		return 0, false, nil
	}
	v, err := version.Int64()
	if err != nil {
		return 0, false, fmt.Errorf("failed to parse rounded version %q: %w", version.String(), err)
	}
	return v, true, nil
}

// Resource looks up a resource in the catalog
func (c *Client) Resource(ctx context.Context, id string) (*Resource, error) {
	var resource Resource
	if err := c.call(ctx, "resource_show", url.Values{"id": {id}}, nil, &resource); err != nil {
		return nil, fmt.Errorf("failed to get resource %s: %w", id, err)
	}
	return &resource, nil
}

// Package looks up a package in the catalog
func (c *Client) Package(ctx context.Context, id string) (*Package, error) {
	var pkg Package
	if err := c.call(ctx, "package_show", url.Values{"id": {id}}, nil, &pkg); err != nil {
		return nil, fmt.Errorf("failed to get package %s: %w", id, err)
	}
	return &pkg, nil
}

// Contributions lists the agents credited on a package
func (c *Client) Contributions(ctx context.Context, packageID string) ([]Contribution, error) {
	var result struct {
		Contributions []Contribution `json:"contributions"`
	}
	if err := c.call(ctx, "package_contributions_show", url.Values{"id": {packageID}}, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to get contributions of package %s: %w", packageID, err)
	}
	return result.Contributions, nil
}

var (
	_ Store   = (*Client)(nil)
	_ Catalog = (*Client)(nil)
)
