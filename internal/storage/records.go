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

const analysisRecordColumns = `id, request_key, variant, user_id, video_url, video_id,
	video_path, video_text, claim, context, analysis_messages, news_messages,
	video_fake_prob, audio_fake_prob, verdict, created_at, updated_at`

// UpsertAnalysisRecord inserts the record for a request key, or refreshes
// the intake fields when the key was ingested before. Later stages fill in
// the remaining columns through the Update* methods.
func (db *DB) UpsertAnalysisRecord(ctx context.Context, rec model.AnalysisRecord) (model.AnalysisRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	err := db.pool.QueryRow(ctx,
		`INSERT INTO analysis_records
		   (id, request_key, variant, user_id, video_url, video_id, video_path, video_text, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (request_key) DO UPDATE SET
		   variant    = EXCLUDED.variant,
		   user_id    = EXCLUDED.user_id,
		   video_url  = EXCLUDED.video_url,
		   video_id   = EXCLUDED.video_id,
		   video_path = EXCLUDED.video_path,
		   video_text = EXCLUDED.video_text,
		   updated_at = now()
		 RETURNING id, created_at, updated_at`,
		rec.ID, rec.RequestKey, string(rec.Variant), rec.UserID, rec.VideoURL,
		rec.VideoID, rec.VideoPath, rec.VideoText, now,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return model.AnalysisRecord{}, fmt.Errorf("storage: upsert analysis record: %w", err)
	}
	return rec, nil
}

// GetAnalysisRecord retrieves a record by its request key.
func (db *DB) GetAnalysisRecord(ctx context.Context, requestKey string) (model.AnalysisRecord, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+analysisRecordColumns+`
		 FROM analysis_records WHERE request_key = $1`, requestKey)

	rec, err := scanAnalysisRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AnalysisRecord{}, fmt.Errorf("storage: analysis record %s: %w", requestKey, ErrNotFound)
		}
		return model.AnalysisRecord{}, fmt.Errorf("storage: get analysis record: %w", err)
	}
	return rec, nil
}

// UpdateAnalysisClaim stores the extracted claim and supporting context.
func (db *DB) UpdateAnalysisClaim(ctx context.Context, requestKey, claim, claimContext string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE analysis_records
		 SET claim = $2, context = $3, updated_at = now()
		 WHERE request_key = $1`,
		requestKey, claim, claimContext,
	)
	if err != nil {
		return fmt.Errorf("storage: update claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: update claim %s: %w", requestKey, ErrNotFound)
	}
	return nil
}

// UpdateAnalysisDetection stores the detector probabilities and the verdict.
func (db *DB) UpdateAnalysisDetection(ctx context.Context, requestKey string, res model.DetectionResult) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE analysis_records
		 SET video_fake_prob = $2, audio_fake_prob = $3, verdict = $4, updated_at = now()
		 WHERE request_key = $1`,
		requestKey, res.VideoFakeProb, res.AudioFakeProb, string(res.Verdict),
	)
	if err != nil {
		return fmt.Errorf("storage: update detection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: update detection %s: %w", requestKey, ErrNotFound)
	}
	return nil
}

// UpdateAnalysisMessages stores the DM-ready analysis summary lines.
func (db *DB) UpdateAnalysisMessages(ctx context.Context, requestKey string, messages []string) error {
	if messages == nil {
		messages = []string{}
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE analysis_records
		 SET analysis_messages = $2, updated_at = now()
		 WHERE request_key = $1`,
		requestKey, messages,
	)
	if err != nil {
		return fmt.Errorf("storage: update analysis messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: update analysis messages %s: %w", requestKey, ErrNotFound)
	}
	return nil
}

// UpdateNewsMessages stores the related-news lines that were sent out.
func (db *DB) UpdateNewsMessages(ctx context.Context, requestKey string, messages []string) error {
	if messages == nil {
		messages = []string{}
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE analysis_records
		 SET news_messages = $2, updated_at = now()
		 WHERE request_key = $1`,
		requestKey, messages,
	)
	if err != nil {
		return fmt.Errorf("storage: update news messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: update news messages %s: %w", requestKey, ErrNotFound)
	}
	return nil
}

// ListAnalysisRecords returns records ordered by creation time, newest
// first, with the total row count for pagination.
func (db *DB) ListAnalysisRecords(ctx context.Context, limit, offset int) ([]model.AnalysisRecord, int, error) {
	if limit <= 0 {
		limit = 50
	}

	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM analysis_records`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count analysis records: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+analysisRecordColumns+`
		 FROM analysis_records
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list analysis records: %w", err)
	}
	defer rows.Close()

	var recs []model.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysisRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan analysis record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

func scanAnalysisRecord(row pgx.Row) (model.AnalysisRecord, error) {
	var (
		rec     model.AnalysisRecord
		variant string
		verdict *string
	)
	err := row.Scan(
		&rec.ID, &rec.RequestKey, &variant, &rec.UserID, &rec.VideoURL, &rec.VideoID,
		&rec.VideoPath, &rec.VideoText, &rec.Claim, &rec.Context, &rec.AnalysisMessages,
		&rec.NewsMessages, &rec.VideoFakeProb, &rec.AudioFakeProb, &verdict,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return model.AnalysisRecord{}, err
	}
	rec.Variant = model.Variant(variant)
	if verdict != nil {
		v := model.Verdict(*verdict)
		rec.Verdict = &v
	}
	return rec, nil
}
