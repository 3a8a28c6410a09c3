package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Stage names. Each stage publishes "<stage>.completed" or "<stage>.failed";
// these strings are the only protocol shared between pipeline definitions and
// stage adapters, so they must stay stable.
const (
	StageDownload          = "reels_download"
	StageClaimExtraction   = "claim_extraction"
	StageDeepfakeDetection = "deepfake_detection"
	StageAnalysis          = "disinformation_analysis"
	StageProcessingMessage = "processing_message"
	StageAnalysisMessage   = "analysis_message"
	StageRelatedNews       = "related_news_filter"
	StageDatasetLoad       = "dataset_load"
	StageDatasetPersist    = "dataset_persist"
)

// Trigger events start a pipeline chain. They are not stage completions.
const (
	EventMessageReceived      = "message.received"
	EventMediaReceived        = "media.received"
	EventDatasetLoadRequested = "dataset.load_requested"
)

// Completed returns the completion event name for a stage.
func Completed(stage string) string { return stage + ".completed" }

// Failed returns the failure event name for a stage.
func Failed(stage string) string { return stage + ".failed" }

// Payload field names. Event payloads are two-level maps:
// {"id": <request id>, "data": {<record fields>}}.
const (
	FieldID              = "id"
	FieldData            = "data"
	FieldError           = "error"
	FieldVariant         = "variant"
	FieldIdempotencyKey  = "idempotencyKey"
	FieldVideoURL        = "videoUrl"
	FieldVideoID         = "videoId"
	FieldVideoPath       = "videoPath"
	FieldVideoText       = "videoText"
	FieldUserID          = "userId"
	FieldClaim           = "claim"
	FieldContext         = "context"
	FieldMessages        = "messages"
	FieldAnalysisMessage = "analysisMessage"
	FieldNews            = "news"
	FieldDatasetID       = "datasetId"
	FieldVerdict         = "verdict"
	FieldVideoFakeProb   = "videoFakeProb"
	FieldAudioFakeProb   = "audioFakeProb"
	FieldNewsSent        = "newsSent"
)

// Event is the immutable envelope delivered through a run's bus.
// The payload is stage-specific and opaque to the bus; handlers must not
// mutate it after publish.
type Event struct {
	ID        ulid.ULID      `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// NewEvent stamps a payload with a fresh ULID and the emission time.
func NewEvent(eventType string, payload map[string]any) Event {
	return Event{
		ID:        ulid.MustNew(ulid.Now(), rand.Reader),
		Type:      eventType,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}
}

// Data returns the nested "data" map of an event payload, or an empty map
// when absent. The returned map is the payload's own; treat it as read-only.
func (e Event) Data() map[string]any {
	if d, ok := e.Payload[FieldData].(map[string]any); ok {
		return d
	}
	return map[string]any{}
}

// RequestID returns the top-level "id" field of an event payload.
func (e Event) RequestID() string {
	s, _ := e.Payload[FieldID].(string)
	return s
}
