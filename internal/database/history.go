// history.go handles the fact-check history table: one row per analyzed
// video, upserted on re-analysis. The core never deletes rows.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/veritube/factcheck-api/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// FindHistoryByVideoID retrieves the cached analysis for a video, if any.
// This is a pure read: it never touches request_count.
func (db *DB) FindHistoryByVideoID(ctx context.Context, videoID string) (*models.HistoryRecord, error) {
	var rec models.HistoryRecord
	err := db.GetContext(ctx, &rec, `SELECT * FROM fact_check_history WHERE video_id = $1`, videoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return &rec, nil
}

// UpsertHistory saves a fresh analysis. A first analysis inserts with
// request_count = 1; a re-analysis replaces the report fields, increments
// request_count, and bumps last_analyzed_at.
func (db *DB) UpsertHistory(ctx context.Context, rec *models.HistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	query := `
		INSERT INTO fact_check_history (
			id, video_id, youtube_url, video_title, analysis_method,
			analysis_result, summary, video_topic, trust_score, trust_level,
			total_claims, correct_claims_count, incorrect_claims_count,
			speculative_claims_count, processing_time, request_count,
			last_analyzed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1, NOW())
		ON CONFLICT (video_id) DO UPDATE SET
			youtube_url = EXCLUDED.youtube_url,
			video_title = EXCLUDED.video_title,
			analysis_method = EXCLUDED.analysis_method,
			analysis_result = EXCLUDED.analysis_result,
			summary = EXCLUDED.summary,
			video_topic = EXCLUDED.video_topic,
			trust_score = EXCLUDED.trust_score,
			trust_level = EXCLUDED.trust_level,
			total_claims = EXCLUDED.total_claims,
			correct_claims_count = EXCLUDED.correct_claims_count,
			incorrect_claims_count = EXCLUDED.incorrect_claims_count,
			speculative_claims_count = EXCLUDED.speculative_claims_count,
			processing_time = EXCLUDED.processing_time,
			request_count = fact_check_history.request_count + 1,
			last_analyzed_at = NOW(),
			updated_at = NOW()
		RETURNING id, request_count, last_analyzed_at, created_at, updated_at`

	return db.QueryRowContext(ctx, query,
		rec.ID, rec.VideoID, rec.YouTubeURL, rec.VideoTitle, rec.AnalysisMethod,
		rec.AnalysisResult, rec.Summary, rec.VideoTopic, rec.TrustScore, rec.TrustLevel,
		rec.TotalClaims, rec.CorrectClaimsCount, rec.IncorrectClaimsCount,
		rec.SpeculativeClaimsCount, rec.ProcessingTime,
	).Scan(&rec.ID, &rec.RequestCount, &rec.LastAnalyzedAt, &rec.CreatedAt, &rec.UpdatedAt)
}

// IncrementHistoryRequestCount bumps the request counter for a cache hit.
// Runs as a background task, so the caller never waits on it.
func (db *DB) IncrementHistoryRequestCount(ctx context.Context, videoID string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE fact_check_history
		 SET request_count = request_count + 1, updated_at = NOW()
		 WHERE video_id = $1`,
		videoID)
	if err != nil {
		return fmt.Errorf("failed to increment request count: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListHistory returns the most recently analyzed videos.
func (db *DB) ListHistory(ctx context.Context, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var records []models.HistoryRecord
	err := db.SelectContext(ctx, &records,
		`SELECT * FROM fact_check_history
		 ORDER BY last_analyzed_at DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}
