package main

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

	"github.com/hyperjump/shirabe/internal/models"
)

const defaultServerURL = "http://localhost:8080"

// apiClient calls a running shirabe server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) Enqueue(ctx context.Context, input models.DocumentInput) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", input, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *apiClient) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	var out models.SearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/search", query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Answer(ctx context.Context, req *models.AnswerRequest) (*models.AnswerResponse, error) {
	var out models.AnswerResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/answer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Queue(ctx context.Context) (models.QueueSnapshot, error) {
	var out models.QueueSnapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/queue", nil, &out)
	return out, err
}

func (c *apiClient) QueueItem(ctx context.Context, id string) (models.QueueItem, error) {
	var out models.QueueItem
	err := c.do(ctx, http.MethodGet, "/api/v1/queue/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *apiClient) ClearQueue(ctx context.Context) (int, error) {
	var out struct {
		Cleared int `json:"cleared"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/v1/queue", nil, &out)
	return out.Cleared, err
}

func (c *apiClient) RemoveQueueItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/queue/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) DeleteDocument(ctx context.Context, id string) (int, error) {
	var out struct {
		Chunks int `json:"chunks_deleted"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, &out)
	return out.Chunks, err
}

func (c *apiClient) Status(ctx context.Context) (*statusResponse, error) {
	var out statusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/admin/reset", nil, nil)
}

func (c *apiClient) WatchDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/watch/directories", nil, &out)
	return out.Directories, err
}

func (c *apiClient) AddWatchDirectory(ctx context.Context, path string, sync bool) error {
	return c.do(ctx, http.MethodPost, "/api/v1/watch/directories", map[string]interface{}{"path": path, "sync": sync}, nil)
}

func (c *apiClient) RemoveWatchDirectory(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, nil)
}
