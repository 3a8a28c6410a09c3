package deepfake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Client scores videos against an HTTP inference service. The service
// accepts a multipart upload on POST /v1/detect with the file in the
// "video" field and answers with a Result document.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// NewClient creates a detector client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detect uploads the video and returns the raw probabilities. The file is
// streamed, not buffered; reels run to tens of megabytes.
func (c *Client) Detect(ctx context.Context, videoPath string) (Result, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return Result{}, fmt.Errorf("deepfake: open video: %w", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer func() { _ = f.Close() }()
		part, err := mw.CreateFormFile("video", filepath.Base(videoPath))
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/detect", pr)
	if err != nil {
		return Result{}, fmt.Errorf("deepfake: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("deepfake: detector request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("deepfake: detector returned status %d: %s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("deepfake: decode response: %w", err)
	}
	return result, nil
}

// NoopDetector scores every video as inconclusive. It keeps pipelines
// runnable when no inference service is configured.
type NoopDetector struct{}

// Detect returns a neutral score.
func (NoopDetector) Detect(_ context.Context, _ string) (Result, error) {
	return Result{VideoFakeProb: 0.5}, nil
}
