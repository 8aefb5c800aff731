package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const defaultGatewayTimeout = 30 * time.Second

// GatewayClient implements Platform against the tabular-data gateway's
// HTTP API.
type GatewayClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewGatewayClient creates a gateway client.
func NewGatewayClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *GatewayClient {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ListContainers returns all containers the gateway credential can access.
func (c *GatewayClient) ListContainers(ctx context.Context) ([]Container, error) {
	var out struct {
		Bases []Container `json:"bases"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/bases", nil, &out); err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	return out.Bases, nil
}

// GetSchema returns the table schemas of one container.
func (c *GatewayClient) GetSchema(ctx context.Context, containerID string) (*Schema, error) {
	var out Schema
	path := fmt.Sprintf("/api/v1/bases/%s/schema", url.PathEscape(containerID))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("get schema for %s: %w", containerID, err)
	}
	return &out, nil
}

// ListRecords returns records of a table, optionally filtered by formula.
func (c *GatewayClient) ListRecords(ctx context.Context, containerID, tableID, filterFormula string) (*RecordPage, error) {
	path := fmt.Sprintf("/api/v1/bases/%s/tables/%s/records", url.PathEscape(containerID), url.PathEscape(tableID))
	if filterFormula != "" {
		path += "?filterByFormula=" + url.QueryEscape(filterFormula)
	}
	var out RecordPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list records for %s/%s: %w", containerID, tableID, err)
	}
	return &out, nil
}

// CreateRecords creates records in a table and returns them with IDs.
func (c *GatewayClient) CreateRecords(ctx context.Context, containerID, tableID string, records []Record) ([]Record, error) {
	path := fmt.Sprintf("/api/v1/bases/%s/tables/%s/records", url.PathEscape(containerID), url.PathEscape(tableID))
	body := map[string]interface{}{"records": records}
	var out RecordPage
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, fmt.Errorf("create records in %s/%s: %w", containerID, tableID, err)
	}
	return out.Records, nil
}

// UpdateRecords patches existing records by ID.
func (c *GatewayClient) UpdateRecords(ctx context.Context, containerID, tableID string, records []Record) ([]Record, error) {
	path := fmt.Sprintf("/api/v1/bases/%s/tables/%s/records", url.PathEscape(containerID), url.PathEscape(tableID))
	body := map[string]interface{}{"records": records}
	var out RecordPage
	if err := c.do(ctx, http.MethodPatch, path, body, &out); err != nil {
		return nil, fmt.Errorf("update records in %s/%s: %w", containerID, tableID, err)
	}
	return out.Records, nil
}

// do performs one JSON round trip against the gateway.
func (c *GatewayClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway http call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("gateway call failed", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("gateway http error (status %d): %s", resp.StatusCode, truncate(raw, 200))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

var _ Platform = (*GatewayClient)(nil)
