// Package filestore adapts the external multimodal file-store API: files
// are uploaded, processed remotely for an unbounded (but usually short)
// time, and become referenceable by URI once active.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/colombo-hci/slopdetect/internal/config"
)

// FileState is the remote processing state of an uploaded file.
type FileState string

const (
	StateProcessing FileState = "PROCESSING"
	StateActive     FileState = "ACTIVE"
	StateFailed     FileState = "FAILED"
)

// Terminal reports whether the state will never change again.
func (s FileState) Terminal() bool {
	return s == StateActive || s == StateFailed
}

// File is the remote file handle returned by the store.
type File struct {
	Handle      string    `json:"name"`
	DisplayName string    `json:"display_name"`
	MimeType    string    `json:"mime_type"`
	State       FileState `json:"state"`
	URI         string    `json:"uri"`
}

// Client is the external file-store API surface the uploader consumes.
type Client interface {
	// Upload submits a local file and returns its remote handle. The
	// returned file is usually still processing.
	Upload(ctx context.Context, localPath, mimeType, displayName string) (*File, error)

	// Get fetches the current remote state of a file.
	Get(ctx context.Context, handle string) (*File, error)
}

// HTTPClient implements Client against the file-store REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a file-store API client.
func NewHTTPClient(cfg config.FileStoreConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.UploadTimeout,
		},
	}
}

// Upload submits the file as multipart form data.
func (c *HTTPClient) Upload(ctx context.Context, localPath, mimeType, displayName string) (*File, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := w.WriteField("display_name", displayName); err != nil {
		return nil, fmt.Errorf("write field: %w", err)
	}
	if err := w.WriteField("mime_type", mimeType); err != nil {
		return nil, fmt.Errorf("write field: %w", err)
	}
	part, err := w.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("x-api-key", c.apiKey)

	return c.do(req)
}

// Get fetches remote file state.
func (c *HTTPClient) Get(ctx context.Context, handle string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+handle, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (*File, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("file store returned %d: %s", resp.StatusCode, string(b))
	}

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &file, nil
}
