// Package dataset implements the offline ingestion stages: loading one
// labeled sample from the local dataset layout and persisting it as a
// sample row plus an analysis record stub.
//
// The layout is <datasetDir>/vids/<id>/ with one .mp4 video and an
// optional .txt caption per sample; <id> is the Instagram post shortcode.
package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
	"github.com/apura-ai/apura/internal/storage"
)

// Loader is the dataset_load stage: it resolves a sample id to its video
// file, caption and canonical post URL.
type Loader struct {
	datasetDir string
	datasetID  string
	logger     *slog.Logger
}

// NewLoader creates the loader stage module. The dataset takes its name
// from the directory's base name unless the payload carries its own.
func NewLoader(datasetDir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		datasetDir: datasetDir,
		datasetID:  filepath.Base(filepath.Clean(datasetDir)),
		logger:     logger.With("component", "dataset"),
	}
}

// Name returns the stage name.
func (l *Loader) Name() string { return model.StageDatasetLoad }

// Execute reads the sample directory and returns the payload with videoId,
// videoUrl, videoPath and videoText filled in.
func (l *Loader) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	videoID, _ := data[model.FieldVideoID].(string)
	if requestID == "" || videoID == "" {
		return nil, fmt.Errorf("dataset: missing id or videoId: %w", pipeline.ErrInvalidPayload)
	}

	dir := filepath.Join(l.datasetDir, "vids", videoID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset: read sample dir: %w", err)
	}

	var videoPath, videoText string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if videoPath == "" && strings.HasSuffix(name, ".mp4") {
			videoPath = filepath.Join(dir, name)
		}
		if videoText == "" && strings.HasSuffix(name, ".txt") {
			raw, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("dataset: read caption: %w", err)
			}
			videoText = string(raw)
		}
	}
	if videoPath == "" {
		return nil, fmt.Errorf("dataset: sample %s has no video file", videoID)
	}
	abs, err := filepath.Abs(videoPath)
	if err != nil {
		return nil, fmt.Errorf("dataset: resolve video path: %w", err)
	}
	l.logger.InfoContext(ctx, "sample loaded", "request_id", requestID, "video_id", videoID, "path", abs)

	out := maps.Clone(data)
	if _, ok := out[model.FieldDatasetID].(string); !ok {
		out[model.FieldDatasetID] = l.datasetID
	}
	out[model.FieldVideoID] = videoID
	out[model.FieldVideoURL] = "https://www.instagram.com/p/" + videoID
	out[model.FieldVideoPath] = abs
	out[model.FieldVideoText] = videoText

	result := maps.Clone(payload)
	result[model.FieldData] = out
	return result, nil
}

// ListSampleIDs returns the sample ids available under the dataset layout,
// in lexical order.
func ListSampleIDs(datasetDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(datasetDir, "vids"))
	if err != nil {
		return nil, fmt.Errorf("dataset: read dataset dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}

// SampleStore persists loaded samples and their record stubs.
type SampleStore interface {
	UpsertDatasetSample(ctx context.Context, sample model.DatasetSample) (model.DatasetSample, error)
	UpsertAnalysisRecord(ctx context.Context, rec model.AnalysisRecord) (model.AnalysisRecord, error)
}

// Persister is the dataset_persist stage: it writes the sample row and an
// analysis record stub for later evaluation runs.
type Persister struct {
	store  SampleStore
	logger *slog.Logger
}

// NewPersister creates the persist stage module.
func NewPersister(store SampleStore, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{store: store, logger: logger.With("component", "dataset")}
}

// Name returns the stage name.
func (p *Persister) Name() string { return model.StageDatasetPersist }

// Execute upserts the sample and its record stub. Batch ingestion runs
// samples concurrently, so the writes retry on serialization conflicts.
func (p *Persister) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	datasetID, _ := data[model.FieldDatasetID].(string)
	videoID, _ := data[model.FieldVideoID].(string)
	videoPath, _ := data[model.FieldVideoPath].(string)
	if requestID == "" || datasetID == "" || videoID == "" || videoPath == "" {
		return nil, fmt.Errorf("dataset: missing id, datasetId, videoId or videoPath: %w", pipeline.ErrInvalidPayload)
	}
	videoURL, _ := data[model.FieldVideoURL].(string)
	videoText, _ := data[model.FieldVideoText].(string)

	sample := model.DatasetSample{
		DatasetID: datasetID,
		VideoID:   videoID,
		VideoURL:  videoURL,
		VideoPath: videoPath,
	}
	if videoText != "" {
		sample.VideoText = &videoText
	}
	rec := model.AnalysisRecord{
		RequestKey: requestID,
		Variant:    model.VariantDatasetCloud,
		VideoURL:   videoURL,
		VideoID:    &videoID,
		VideoPath:  &videoPath,
	}
	if videoText != "" {
		rec.VideoText = &videoText
	}

	err := storage.WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		if _, err := p.store.UpsertDatasetSample(ctx, sample); err != nil {
			return err
		}
		_, err := p.store.UpsertAnalysisRecord(ctx, rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: persist sample: %w", err)
	}
	p.logger.InfoContext(ctx, "sample persisted", "request_id", requestID, "dataset_id", datasetID, "video_id", videoID)
	return payload, nil
}
