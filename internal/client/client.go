// Package client is a typed HTTP client for the todo API.
package client

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

	"gotodo/internal/todo"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	// Message is the server's "message" or "error" field, or "" when the
	// body carried neither.
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("todo api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("todo api: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a todo API server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a client for the server at baseURL, e.g. http://localhost:9090.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List fetches every todo, newest first.
func (c *Client) List(ctx context.Context) ([]*todo.Todo, error) {
	var out todo.ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/todos", nil, &out); err != nil {
		return nil, err
	}
	return out.Todos, nil
}

// Get fetches one todo.
func (c *Client) Get(ctx context.Context, id string) (*todo.Todo, error) {
	var out todo.Todo
	if err := c.do(ctx, http.MethodGet, "/api/todos/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create adds a todo and returns it as stored.
func (c *Client) Create(ctx context.Context, req todo.CreateRequest) (*todo.Todo, error) {
	var out todo.Todo
	if err := c.do(ctx, http.MethodPost, "/api/todos", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update modifies a todo and returns it as stored.
func (c *Client) Update(ctx context.Context, id string, req todo.UpdateRequest) (*todo.Todo, error) {
	var out todo.Todo
	if err := c.do(ctx, http.MethodPut, "/api/todos/"+url.PathEscape(id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a todo and returns the server's confirmation message.
func (c *Client) Delete(ctx context.Context, id string) (string, error) {
	var out todo.MessageResponse
	if err := c.do(ctx, http.MethodDelete, "/api/todos/"+url.PathEscape(id), nil, &out); err != nil {
		return "", err
	}
	return out.Text(), nil
}

// Exists reports whether a todo with an equivalent title is stored.
func (c *Client) Exists(ctx context.Context, title string) (bool, error) {
	var out todo.ExistsResponse
	path := "/api/todos/exists?title=" + url.QueryEscape(title)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg todo.MessageResponse
		if json.NewDecoder(resp.Body).Decode(&msg) == nil {
			apiErr.Message = msg.Text()
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
