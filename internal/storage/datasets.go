package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/apura-ai/apura/internal/model"
)

// UpsertDatasetSample inserts one imported sample, or refreshes it when the
// same (dataset, video) pair is ingested again.
func (db *DB) UpsertDatasetSample(ctx context.Context, s model.DatasetSample) (model.DatasetSample, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt = now

	err := db.pool.QueryRow(ctx,
		`INSERT INTO dataset_samples
		   (id, dataset_id, video_id, video_url, video_path, video_text, label, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (dataset_id, video_id) DO UPDATE SET
		   video_url  = EXCLUDED.video_url,
		   video_path = EXCLUDED.video_path,
		   video_text = EXCLUDED.video_text,
		   label      = EXCLUDED.label
		 RETURNING id, created_at`,
		s.ID, s.DatasetID, s.VideoID, s.VideoURL, s.VideoPath, s.VideoText, s.Label, now,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return model.DatasetSample{}, fmt.Errorf("storage: upsert dataset sample: %w", err)
	}
	return s, nil
}

// GetDatasetSample retrieves one sample by dataset and video id.
func (db *DB) GetDatasetSample(ctx context.Context, datasetID, videoID string) (model.DatasetSample, error) {
	var s model.DatasetSample
	err := db.pool.QueryRow(ctx,
		`SELECT id, dataset_id, video_id, video_url, video_path, video_text, label, created_at
		 FROM dataset_samples WHERE dataset_id = $1 AND video_id = $2`,
		datasetID, videoID,
	).Scan(&s.ID, &s.DatasetID, &s.VideoID, &s.VideoURL, &s.VideoPath, &s.VideoText, &s.Label, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DatasetSample{}, fmt.Errorf("storage: dataset sample %s/%s: %w", datasetID, videoID, ErrNotFound)
		}
		return model.DatasetSample{}, fmt.Errorf("storage: get dataset sample: %w", err)
	}
	return s, nil
}

// ListDatasetSamples returns the samples of one dataset ordered by video id.
func (db *DB) ListDatasetSamples(ctx context.Context, datasetID string, limit, offset int) ([]model.DatasetSample, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM dataset_samples WHERE dataset_id = $1`, datasetID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count dataset samples: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, dataset_id, video_id, video_url, video_path, video_text, label, created_at
		 FROM dataset_samples WHERE dataset_id = $1
		 ORDER BY video_id
		 LIMIT $2 OFFSET $3`, datasetID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list dataset samples: %w", err)
	}
	defer rows.Close()

	var samples []model.DatasetSample
	for rows.Next() {
		var s model.DatasetSample
		if err := rows.Scan(
			&s.ID, &s.DatasetID, &s.VideoID, &s.VideoURL, &s.VideoPath,
			&s.VideoText, &s.Label, &s.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("storage: scan dataset sample: %w", err)
		}
		samples = append(samples, s)
	}
	return samples, total, rows.Err()
}
