package apura

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the apura server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used. Ingest calls run the pipeline
	// synchronously, so give the client a generous timeout when using
	// IngestAll on large datasets.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	// Ignored when HTTPClient is set.
	Timeout time.Duration
}

// Client is an HTTP client for the apura operator API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("apura: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
	}, nil
}

// IngestAll runs the dataset pipeline for every sample in the server's
// dataset directory and returns per-sample outcomes.
func (c *Client) IngestAll(ctx context.Context) (*IngestResponse, error) {
	var resp IngestResponse
	if err := c.post(ctx, "/v1/datasets/ingest", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IngestSample runs the dataset pipeline for one sample.
func (c *Client) IngestSample(ctx context.Context, sampleID string) (*IngestResponse, error) {
	var resp IngestResponse
	if err := c.post(ctx, "/v1/datasets/"+url.PathEscape(sampleID)+"/ingest", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSamples retrieves one page of persisted samples for a dataset.
func (c *Client) ListSamples(ctx context.Context, datasetID string, opts *ListOptions) (*SampleList, error) {
	path := "/v1/datasets/" + url.PathEscape(datasetID) + "/samples" + pageQuery(opts)
	var resp SampleList
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRecord fetches the analysis record for a request key.
// Returns an error satisfying IsNotFound when no record exists.
func (c *Client) GetRecord(ctx context.Context, requestKey string) (*AnalysisRecord, error) {
	var resp AnalysisRecord
	if err := c.get(ctx, "/v1/records/"+url.PathEscape(requestKey), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRecords retrieves one page of analysis records, newest first.
func (c *Client) ListRecords(ctx context.Context, opts *ListOptions) (*RecordList, error) {
	var resp RecordList
	if err := c.get(ctx, "/v1/records"+pageQuery(opts), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func pageQuery(opts *ListOptions) string {
	if opts == nil {
		return ""
	}
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("apura: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("apura: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("apura: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apura: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("apura: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
