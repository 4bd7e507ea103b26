package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"flashdeck/internal/models"
)

// HistoryService appends upload outcomes and rating events to the SQLite
// ledger. A nil *HistoryService is valid and records nothing.
type HistoryService struct {
	db *sql.DB
}

func NewHistoryService(db *sql.DB) *HistoryService {
	if db == nil {
		return nil
	}
	return &HistoryService{db: db}
}

func (s *HistoryService) RecordUpload(ctx context.Context, rec models.UploadRecord) error {
	if s == nil {
		return nil
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (session_id, original_name, content_type, format, text_chars, card_count, generator, status, error_kind, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, rec.SessionID, rec.Name, rec.ContentType, rec.Format, rec.TextChars, rec.CardCount, rec.Generator, rec.Status, rec.ErrorKind, rec.UploadedAt); err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// RecordReview stores the state of card right after a rating.
func (s *HistoryService) RecordReview(ctx context.Context, sessionID string, card models.Flashcard) error {
	if s == nil {
		return nil
	}
	reviewedAt := time.Now().UTC()
	if card.LastReviewedAt != nil {
		reviewedAt = card.LastReviewedAt.UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO reviews (session_id, card_id, difficulty, mastery_level, review_count, scheduled_days, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, sessionID, card.ID, card.Difficulty, card.MasteryLevel, card.ReviewCount, int(card.Schedule.ScheduledDays), reviewedAt); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// RecentUploads lists the newest ledger rows first.
func (s *HistoryService) RecentUploads(ctx context.Context, limit int) ([]models.UploadRecord, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, original_name, content_type, format, text_chars, card_count, generator, status, error_kind, uploaded_at
		FROM uploads
		ORDER BY uploaded_at DESC, id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	var out []models.UploadRecord
	for rows.Next() {
		var rec models.UploadRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.Name,
			&rec.ContentType,
			&rec.Format,
			&rec.TextChars,
			&rec.CardCount,
			&rec.Generator,
			&rec.Status,
			&rec.ErrorKind,
			&rec.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return out, nil
}

// SessionReviews returns the rating events of one session in the order they happened.
func (s *HistoryService) SessionReviews(ctx context.Context, sessionID string) ([]models.ReviewRecord, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, card_id, difficulty, mastery_level, review_count, scheduled_days, reviewed_at
		FROM reviews
		WHERE session_id = ?
		ORDER BY id ASC;
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var out []models.ReviewRecord
	for rows.Next() {
		var rec models.ReviewRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.CardID,
			&rec.Difficulty,
			&rec.MasteryLevel,
			&rec.ReviewCount,
			&rec.ScheduledDays,
			&rec.ReviewedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return out, nil
}
