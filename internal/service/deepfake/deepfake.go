// Package deepfake implements the deepfake_detection stage. Scoring runs in
// an external inference service; this package holds the HTTP client, the
// probability combination rule, and the stage module that applies it.
package deepfake

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
)

// Result carries the raw probabilities returned by the inference service.
// AudioFakeProb is nil when the video has no usable audio track.
type Result struct {
	VideoFakeProb float64  `json:"video_fake_prob"`
	AudioFakeProb *float64 `json:"audio_fake_prob"`
	AudioStatus   string   `json:"audio_status,omitempty"`
}

// Detector scores a local video file.
type Detector interface {
	Detect(ctx context.Context, videoPath string) (Result, error)
}

// Combine applies the weighted verdict rule to raw probabilities. A missing
// audio score counts as 0.5 so music-only reels stay decidable. The video
// model dominates: video >= 0.8 is FAKE regardless of audio.
func Combine(videoProb float64, audioProb *float64) model.DetectionResult {
	res := model.DetectionResult{VideoFakeProb: videoProb, AudioFakeProb: 0.5}
	if audioProb != nil {
		res.AudioFakeProb = *audioProb
	} else {
		res.AudioNote = "no audio"
	}
	combined := videoProb*0.6 + res.AudioFakeProb*0.4
	switch {
	case videoProb >= 0.8 || combined >= 0.8:
		res.Verdict = model.VerdictFake
	case combined >= 0.4:
		res.Verdict = model.VerdictInconclusive
	default:
		res.Verdict = model.VerdictReal
	}
	return res
}

// RecordStore persists the detection outcome.
type RecordStore interface {
	UpdateAnalysisDetection(ctx context.Context, requestKey string, res model.DetectionResult) error
}

// Service is the stage module.
type Service struct {
	detector Detector
	records  RecordStore
	logger   *slog.Logger
}

// New creates the deepfake detection stage module.
func New(detector Detector, records RecordStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		detector: detector,
		records:  records,
		logger:   logger.With("component", "deepfake"),
	}
}

// Name returns the stage name.
func (s *Service) Name() string { return model.StageDeepfakeDetection }

// Execute scores the downloaded video, derives the verdict, persists it,
// and returns the payload with the probabilities and verdict set.
func (s *Service) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	videoPath, _ := data[model.FieldVideoPath].(string)
	if requestID == "" || videoPath == "" {
		return nil, fmt.Errorf("deepfake: missing id or videoPath: %w", pipeline.ErrInvalidPayload)
	}

	raw, err := s.detector.Detect(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("deepfake: score video: %w", err)
	}
	det := Combine(raw.VideoFakeProb, raw.AudioFakeProb)
	s.logger.InfoContext(ctx, "video scored",
		"request_id", requestID,
		"video_fake_prob", det.VideoFakeProb,
		"audio_fake_prob", det.AudioFakeProb,
		"verdict", det.Verdict,
	)

	if s.records != nil {
		if err := s.records.UpdateAnalysisDetection(ctx, requestID, det); err != nil {
			return nil, fmt.Errorf("deepfake: persist detection: %w", err)
		}
	}

	out := maps.Clone(data)
	out[model.FieldVideoFakeProb] = det.VideoFakeProb
	out[model.FieldAudioFakeProb] = det.AudioFakeProb
	out[model.FieldVerdict] = string(det.Verdict)

	result := maps.Clone(payload)
	result[model.FieldData] = out
	return result, nil
}
