// Package download implements the reels_download stage: it streams the
// submitted video to local media storage and creates the analysis record.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/apura-ai/apura/internal/model"
	"github.com/apura-ai/apura/internal/pipeline"
)

// RecordStore creates the analysis record at intake.
type RecordStore interface {
	UpsertAnalysisRecord(ctx context.Context, rec model.AnalysisRecord) (model.AnalysisRecord, error)
}

// Service downloads one video per run into mediaDir.
type Service struct {
	mediaDir   string
	records    RecordStore
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the downloader.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// New creates the downloader stage module.
func New(mediaDir string, records RecordStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		mediaDir: mediaDir,
		records:  records,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger.With("component", "download"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the stage name.
func (s *Service) Name() string { return model.StageDownload }

// Execute streams the video at videoUrl to <mediaDir>/<requestID>.mp4,
// creates the analysis record, and returns the payload with videoPath set.
func (s *Service) Execute(ctx context.Context, payload map[string]any) (map[string]any, error) {
	requestID, _ := payload[model.FieldID].(string)
	data, _ := payload[model.FieldData].(map[string]any)
	videoURL, _ := data[model.FieldVideoURL].(string)
	if requestID == "" || videoURL == "" {
		return nil, fmt.Errorf("download: missing id or videoUrl: %w", pipeline.ErrInvalidPayload)
	}

	path, err := s.fetch(ctx, videoURL, requestID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "video downloaded", "request_id", requestID, "path", path)

	out := maps.Clone(data)
	out[model.FieldVideoPath] = path

	if s.records != nil {
		rec := model.AnalysisRecord{
			RequestKey: requestID,
			Variant:    variantOf(payload),
			VideoURL:   videoURL,
			VideoPath:  &path,
		}
		if userID, ok := data[model.FieldUserID].(string); ok && userID != "" {
			rec.UserID = &userID
		}
		if videoID, ok := data[model.FieldVideoID].(string); ok && videoID != "" {
			rec.VideoID = &videoID
		}
		if text, ok := data[model.FieldVideoText].(string); ok && text != "" {
			rec.VideoText = &text
		}
		if _, err := s.records.UpsertAnalysisRecord(ctx, rec); err != nil {
			return nil, fmt.Errorf("download: persist record: %w", err)
		}
	}

	result := maps.Clone(payload)
	result[model.FieldData] = out
	return result, nil
}

// fetch streams the remote video to disk and returns the absolute path.
func (s *Service) fetch(ctx context.Context, videoURL, requestID string) (string, error) {
	if err := os.MkdirAll(s.mediaDir, 0o755); err != nil {
		return "", fmt.Errorf("download: create media dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return "", fmt.Errorf("download: create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: fetch video: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: unexpected status %d for %s", resp.StatusCode, videoURL)
	}

	path, err := filepath.Abs(filepath.Join(s.mediaDir, requestID+".mp4"))
	if err != nil {
		return "", fmt.Errorf("download: resolve path: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("download: create file: %w", err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("download: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("download: close file: %w", err)
	}
	return path, nil
}

func variantOf(payload map[string]any) model.Variant {
	if v, ok := payload[model.FieldVariant].(string); ok {
		if variant, err := model.ParseVariant(v); err == nil {
			return variant
		}
	}
	return model.VariantDirectMessage
}
