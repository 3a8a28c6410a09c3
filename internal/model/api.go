package model

import (
	"fmt"
	"strings"
	"time"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// WebhookAck is the response body for POST /webhook. The Meta platform only
// cares about the 200 status; the body exists for operators reading logs.
type WebhookAck struct {
	Received int `json:"received"`
	Accepted int `json:"accepted"`
}

// IngestResult is the per-sample outcome of a dataset ingestion run.
type IngestResult struct {
	SampleID string `json:"sample_id"`
	Status   string `json:"status"` // "ingested" or "failed"
	Error    string `json:"error,omitempty"`
}

// IngestResponse is the response body for the dataset ingest endpoints.
type IngestResponse struct {
	Results []IngestResult `json:"results"`
}

// RecordList is one page of analysis records.
type RecordList struct {
	Records []AnalysisRecord `json:"records"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// SampleList is one page of dataset samples.
type SampleList struct {
	Samples []DatasetSample `json:"samples"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Postgres   string `json:"postgres"`
	Guard      string `json:"guard"`
	ActiveRuns int64  `json:"active_runs"`
	Uptime     int64  `json:"uptime_seconds"`
}

// MaxSampleIDLen bounds dataset sample ids; they become directory names.
const MaxSampleIDLen = 128

// ValidateSampleID ensures a dataset sample id is a single safe path
// segment. Sample ids come straight from the URL and are joined into
// filesystem paths, so anything resembling traversal is rejected.
func ValidateSampleID(id string) error {
	if id == "" {
		return fmt.Errorf("sample id must not be empty")
	}
	if len(id) > MaxSampleIDLen {
		return fmt.Errorf("sample id exceeds maximum length of %d characters", MaxSampleIDLen)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("sample id must not be a relative path element")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("sample id must not contain path separators")
	}
	return nil
}
