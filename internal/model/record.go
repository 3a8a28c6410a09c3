package model

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

// DetectionResult carries the raw manipulation probabilities returned by
// the detector. Audio is optional; reels are frequently music-only.
type DetectionResult struct {
	VideoFakeProb float64 `json:"video_fake_prob"`
	AudioFakeProb float64 `json:"audio_fake_prob"`
	AudioNote     string  `json:"audio_note,omitempty"`
	Verdict       Verdict `json:"verdict"`
}

// AnalysisRecord is the durable outcome of one analysis run, one row per
// admitted submission. Fields are filled in as stages complete, so most
// are nullable.
type AnalysisRecord struct {
	ID               uuid.UUID `json:"id"`
	RequestKey       string    `json:"request_key"`
	Variant          Variant   `json:"variant"`
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

// DatasetSample is one labeled video imported from a dataset bucket.
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

// NewsArticle is a candidate related-news item fetched from an external
// news index, scored for relevance against the video's claim.
type NewsArticle struct {
	Source      string  `json:"source"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}
