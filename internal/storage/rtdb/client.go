package rtdb

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

	"github.com/dtroode/contestauth/internal/model"
)

const maxDocumentBytes = 1 << 20

var _ model.DocumentStore = (*Client)(nil)

// Client stores JSON documents in a realtime database over its REST interface.
// Every request carries the credential as the auth query parameter.
type Client struct {
	baseURL string
	auth    string
	http    *http.Client
}

// NewClient creates a document store rooted at baseURL.
func NewClient(baseURL, auth string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		http:    &http.Client{Timeout: timeout},
	}
}

// Put overwrites the document stored under key.
func (c *Client) Put(ctx context.Context, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = c.do(ctx, http.MethodPut, key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}
	return nil
}

// Get decodes the document stored under key into dst. The database answers null for missing paths.
func (c *Client) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get document: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}

	if err := json.Unmarshal(trimmed, dst); err != nil {
		return false, fmt.Errorf("failed to decode document: %w", err)
	}
	return true, nil
}

// Delete removes the document stored under key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if _, err := c.do(ctx, http.MethodDelete, key, nil); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, key string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.documentURL(key), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *Client) documentURL(key string) string {
	return c.baseURL + "/" + key + ".json?auth=" + url.QueryEscape(c.auth)
}
