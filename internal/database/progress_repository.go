package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/lexisync/pkg/models"
)

// ProgressRepository handles database operations for learning progress
type ProgressRepository struct{}

// NewProgressRepository creates a new repository instance
func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{}
}

// GetByUserAndWord returns progress for a specific user and word.
// A missing pair returns (nil, nil) so callers can create lazily.
func (r *ProgressRepository) GetByUserAndWord(ctx context.Context, userID, wordID int64) (*models.LearningProgress, error) {
	var progress models.LearningProgress
	query := DB.Rebind("SELECT * FROM learning_progress WHERE user_id = ? AND word_id = ?")
	err := DB.GetContext(ctx, &progress, query, userID, wordID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learning progress: %v", err)
	}
	return &progress, nil
}

// GetDueForUser returns all progress records due for review at the
// given time: never reviewed, or next_review_at has passed. Rows for
// tombstoned words are excluded so they never occupy study-set slots.
func (r *ProgressRepository) GetDueForUser(ctx context.Context, userID int64, now time.Time) ([]models.LearningProgress, error) {
	var progress []models.LearningProgress
	query := DB.Rebind(`
		SELECT lp.* FROM learning_progress lp
		JOIN words w ON w.id = lp.word_id
		WHERE lp.user_id = ? AND w.deleted = ?
		AND (lp.next_review_at IS NULL OR lp.next_review_at <= ?)
		ORDER BY lp.next_review_at ASC
	`)
	if err := DB.SelectContext(ctx, &progress, query, userID, false, now); err != nil {
		return nil, fmt.Errorf("failed to get due progress: %v", err)
	}
	return progress, nil
}

// GetStudiedWordIDs returns the word IDs the user has progress rows for
func (r *ProgressRepository) GetStudiedWordIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	query := DB.Rebind("SELECT word_id FROM learning_progress WHERE user_id = ?")
	if err := DB.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("failed to get studied word IDs: %v", err)
	}
	return ids, nil
}

// SaveBatch persists a batch of progress records in a single
// transaction. Records with ID 0 are inserted, others updated. Either
// the whole batch is persisted or none of it is.
func (r *ProgressRepository) SaveBatch(ctx context.Context, records []*models.LearningProgress) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	insertQuery := tx.Rebind(`
		INSERT INTO learning_progress (
			user_id, word_id, study_count, correct_count, incorrect_count,
			memory_strength, last_studied_at, next_review_at, row_version,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	updateQuery := tx.Rebind(`
		UPDATE learning_progress SET
			study_count = ?,
			correct_count = ?,
			incorrect_count = ?,
			memory_strength = ?,
			last_studied_at = ?,
			next_review_at = ?,
			row_version = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`)

	for _, p := range records {
		if p.ID == 0 {
			result, err := tx.ExecContext(ctx, insertQuery,
				p.UserID, p.WordID, p.StudyCount, p.CorrectCount, p.IncorrectCount,
				p.MemoryStrength, p.LastStudiedAt, p.NextReviewAt, p.RowVersion,
				p.CreatedAt, p.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert progress for word %d: %v", p.WordID, err)
			}
			if DB.DriverName() != "postgres" {
				id, err := result.LastInsertId()
				if err != nil {
					return fmt.Errorf("failed to get last insert ID: %v", err)
				}
				p.ID = id
			}
		} else {
			result, err := tx.ExecContext(ctx, updateQuery,
				p.StudyCount, p.CorrectCount, p.IncorrectCount,
				p.MemoryStrength, p.LastStudiedAt, p.NextReviewAt, p.RowVersion,
				p.UpdatedAt, p.ID, p.UserID,
			)
			if err != nil {
				return fmt.Errorf("failed to update progress for word %d: %v", p.WordID, err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %v", err)
			}
			if rows == 0 {
				return fmt.Errorf("progress record %d not found or owned by another user", p.ID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit progress batch: %v", err)
	}
	return nil
}

// Upsert creates or overwrites the progress row for (user, word).
// Used when applying pulled server records, which are authoritative.
func (r *ProgressRepository) Upsert(ctx context.Context, p *models.LearningProgress) error {
	existing, err := r.GetByUserAndWord(ctx, p.UserID, p.WordID)
	if err != nil {
		return err
	}

	if existing == nil {
		query := DB.Rebind(`
			INSERT INTO learning_progress (
				user_id, word_id, study_count, correct_count, incorrect_count,
				memory_strength, last_studied_at, next_review_at, row_version,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		result, err := DB.ExecContext(ctx, query,
			p.UserID, p.WordID, p.StudyCount, p.CorrectCount, p.IncorrectCount,
			p.MemoryStrength, p.LastStudiedAt, p.NextReviewAt, p.RowVersion,
			p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert progress: %v", err)
		}
		if DB.DriverName() != "postgres" {
			if id, err := result.LastInsertId(); err == nil {
				p.ID = id
			}
		}
		return nil
	}

	p.ID = existing.ID
	query := DB.Rebind(`
		UPDATE learning_progress SET
			study_count = ?,
			correct_count = ?,
			incorrect_count = ?,
			memory_strength = ?,
			last_studied_at = ?,
			next_review_at = ?,
			row_version = ?,
			updated_at = ?
		WHERE id = ? AND user_id = ?
	`)
	if _, err := DB.ExecContext(ctx, query,
		p.StudyCount, p.CorrectCount, p.IncorrectCount,
		p.MemoryStrength, p.LastStudiedAt, p.NextReviewAt, p.RowVersion,
		p.UpdatedAt, p.ID, p.UserID,
	); err != nil {
		return fmt.Errorf("failed to update progress: %v", err)
	}
	return nil
}

// DeleteByUserAndWord removes a progress record. Ownership is enforced
// by the user_id filter.
func (r *ProgressRepository) DeleteByUserAndWord(ctx context.Context, userID, wordID int64) error {
	query := DB.Rebind("DELETE FROM learning_progress WHERE user_id = ? AND word_id = ?")
	if _, err := DB.ExecContext(ctx, query, userID, wordID); err != nil {
		return fmt.Errorf("failed to delete progress: %v", err)
	}
	return nil
}

// Statistics returns summary numbers about a user's learning state
func (r *ProgressRepository) Statistics(ctx context.Context, userID int64) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalCount int
	query := DB.Rebind("SELECT COUNT(*) FROM learning_progress WHERE user_id = ?")
	if err := DB.GetContext(ctx, &totalCount, query, userID); err != nil {
		return nil, fmt.Errorf("failed to count progress rows: %v", err)
	}
	stats["total_words"] = totalCount

	var dueNow int
	query = DB.Rebind(`
		SELECT COUNT(*) FROM learning_progress
		WHERE user_id = ? AND (next_review_at IS NULL OR next_review_at <= ?)
	`)
	if err := DB.GetContext(ctx, &dueNow, query, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to count due rows: %v", err)
	}
	stats["due_now"] = dueNow

	// Strength 81+ maps to the longest review interval
	var mastered int
	query = DB.Rebind("SELECT COUNT(*) FROM learning_progress WHERE user_id = ? AND memory_strength >= 81")
	if err := DB.GetContext(ctx, &mastered, query, userID); err != nil {
		return nil, fmt.Errorf("failed to count mastered rows: %v", err)
	}
	stats["mastered"] = mastered

	var avgStrength float64
	query = DB.Rebind("SELECT COALESCE(AVG(memory_strength), 0) FROM learning_progress WHERE user_id = ?")
	if err := DB.GetContext(ctx, &avgStrength, query, userID); err != nil {
		return nil, fmt.Errorf("failed to average memory strength: %v", err)
	}
	stats["avg_memory_strength"] = avgStrength

	return stats, nil
}
