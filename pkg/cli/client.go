// Package cli implements the tablectl command-line interface.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	HTTPStatus int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.HTTPStatus, e.Message)
}

// Client is a thin JSON client for the analysis API.
type Client struct {
	BaseURL string
	http    *http.Client
}

// NewClient creates a client for the given host.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Get performs a GET and decodes the JSON response into out.
func (c *Client) Get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, nil, out)
}

// Post performs a POST with a JSON body and decodes the response into out.
func (c *Client) Post(path string, body, out interface{}) error {
	return c.do(http.MethodPost, path, body, out)
}

// Delete performs a DELETE and decodes the JSON response into out.
func (c *Client) Delete(path string, out interface{}) error {
	return c.do(http.MethodDelete, path, nil, out)
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := string(raw)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &APIError{HTTPStatus: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
