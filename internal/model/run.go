// Package model defines the core domain types shared across apura's
// pipeline engine, storage layer, and HTTP surface. Types here carry no
// behavior beyond construction and validation helpers.
package model

import (
	"fmt"
	"time"
)

// Variant selects which pipeline definition a run is wired with.
type Variant string

const (
	// VariantDirectMessage handles an inbound direct message carrying a
	// reel: full analysis plus conversational replies to the sender.
	VariantDirectMessage Variant = "direct_message"
	// VariantDatasetCloud loads labeled samples from cloud storage and
	// persists them for model evaluation. No messaging stages.
	VariantDatasetCloud Variant = "dataset_cloud"
	// VariantWebhook handles a media change notification: full analysis
	// without any reply stages.
	VariantWebhook Variant = "webhook"
)

// ParseVariant validates a wire-level variant string.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantDirectMessage, VariantDatasetCloud, VariantWebhook:
		return v, nil
	default:
		return "", fmt.Errorf("unknown pipeline variant %q", s)
	}
}

// Trigger returns the event that starts this variant's chain.
func (v Variant) Trigger() string {
	switch v {
	case VariantDatasetCloud:
		return EventDatasetLoadRequested
	case VariantWebhook:
		return EventMediaReceived
	default:
		return EventMessageReceived
	}
}

// RunStatus tracks a pipeline run's lifecycle.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// PipelineRun is the engine's bookkeeping for one accepted submission.
// Each run owns a private event bus for its lifetime.
type PipelineRun struct {
	ID         string     `json:"id"`
	Variant    Variant    `json:"variant"`
	Key        string     `json:"key"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Submission is one unit of admissible work extracted from an intake
// payload: the variant to run and the flat field set seeding the chain.
type Submission struct {
	Variant Variant
	Payload map[string]any
}

// Key returns the submission's idempotency key, or "" when absent.
func (s Submission) Key() string {
	k, _ := s.Payload[FieldIdempotencyKey].(string)
	return k
}
