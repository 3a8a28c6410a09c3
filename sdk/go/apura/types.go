package apura

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the final classification of a detection result.
type Verdict string

const (
	VerdictReal         Verdict = "REAL"
	VerdictInconclusive Verdict = "INCONCLUSIVE"
	VerdictFake         Verdict = "FAKE"
)

// AnalysisRecord mirrors the server's analysis record for API consumers.
// Stage fields are nil until the corresponding pipeline stage completes.
type AnalysisRecord struct {
	ID               uuid.UUID `json:"id"`
	RequestKey       string    `json:"request_key"`
	Variant          string    `json:"variant"`
	UserID           *string   `json:"user_id,omitempty"`
	VideoURL         string    `json:"video_url"`
	VideoID          *string   `json:"video_id,omitempty"`
	VideoPath        *string   `json:"video_path,omitempty"`
	VideoText        *string   `json:"video_text,omitempty"`
	Claim            *string   `json:"claim,omitempty"`
	Context          *string   `json:"context,omitempty"`
	AnalysisMessages []string  `json:"analysis_messages,omitempty"`
	NewsMessages     []string  `json:"news_messages,omitempty"`
	VideoFakeProb    *float64  `json:"video_fake_prob,omitempty"`
	AudioFakeProb    *float64  `json:"audio_fake_prob,omitempty"`
	Verdict          *Verdict  `json:"verdict,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DatasetSample mirrors the server's persisted dataset sample.
type DatasetSample struct {
	ID        uuid.UUID `json:"id"`
	DatasetID string    `json:"dataset_id"`
	VideoID   string    `json:"video_id"`
	VideoURL  string    `json:"video_url"`
	VideoPath string    `json:"video_path"`
	VideoText *string   `json:"video_text,omitempty"`
	Label     *string   `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IngestResult reports the outcome of ingesting one dataset sample.
type IngestResult struct {
	SampleID string `json:"sample_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// IngestResponse is the result set of an ingest call.
type IngestResponse struct {
	Results []IngestResult `json:"results"`
}

// RecordList is one page of analysis records, newest first.
type RecordList struct {
	Records []AnalysisRecord `json:"records"`
	Total   int              `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// SampleList is one page of dataset samples, video ID ascending.
type SampleList struct {
	Samples []DatasetSample `json:"samples"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// Health is the server's health report.
type Health struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Postgres   string `json:"postgres"`
	Guard      string `json:"guard"`
	ActiveRuns int64  `json:"active_runs"`
	Uptime     int64  `json:"uptime"`
}

// ListOptions control pagination for list calls. The zero value uses the
// server defaults (limit 50, offset 0).
type ListOptions struct {
	Limit  int
	Offset int
}
