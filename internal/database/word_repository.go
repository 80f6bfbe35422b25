package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/lexisync/pkg/models"
	"github.com/google/uuid"
)

// WordRepository handles database operations for the vocabulary catalog
type WordRepository struct{}

// NewWordRepository creates a new repository instance
func NewWordRepository() *WordRepository {
	return &WordRepository{}
}

// GetByID returns a word by ID, or (nil, nil) when it does not exist
func (r *WordRepository) GetByID(ctx context.Context, id int64) (*models.Word, error) {
	var word models.Word
	query := DB.Rebind("SELECT * FROM words WHERE id = ?")
	err := DB.GetContext(ctx, &word, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get word by ID: %v", err)
	}
	return &word, nil
}

// Exists reports whether a live (non-tombstoned) word exists
func (r *WordRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var count int
	query := DB.Rebind("SELECT COUNT(*) FROM words WHERE id = ? AND deleted = ?")
	if err := DB.GetContext(ctx, &count, query, id, false); err != nil {
		return false, fmt.Errorf("failed to check word existence: %v", err)
	}
	return count > 0, nil
}

// GetByTermAndCategory returns a word by its natural key, or (nil, nil)
func (r *WordRepository) GetByTermAndCategory(ctx context.Context, term, category string) (*models.Word, error) {
	var word models.Word
	query := DB.Rebind("SELECT * FROM words WHERE term = ? AND category = ?")
	err := DB.GetContext(ctx, &word, query, term, category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get word by term: %v", err)
	}
	return &word, nil
}

// GetUnstudiedIDs returns catalog word IDs the user has never studied,
// oldest first, up to limit.
func (r *WordRepository) GetUnstudiedIDs(ctx context.Context, userID int64, limit int) ([]int64, error) {
	var ids []int64
	query := DB.Rebind(`
		SELECT w.id FROM words w
		WHERE w.deleted = ?
		AND NOT EXISTS (
			SELECT 1 FROM learning_progress lp
			WHERE lp.user_id = ? AND lp.word_id = w.id
		)
		ORDER BY w.id ASC
		LIMIT ?
	`)
	if err := DB.SelectContext(ctx, &ids, query, false, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to get unstudied words: %v", err)
	}
	return ids, nil
}

// Create inserts a new word and assigns it a fresh row version
func (r *WordRepository) Create(ctx context.Context, word *models.Word) error {
	now := time.Now().UTC()
	word.RowVersion = uuid.NewString()
	word.CreatedAt = now
	word.UpdatedAt = now

	if DB.DriverName() == "postgres" {
		query := `
			INSERT INTO words (term, translation, category, level, row_version, deleted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`
		return DB.QueryRowContext(ctx, query,
			word.Term, word.Translation, word.Category, word.Level,
			word.RowVersion, word.Deleted, word.CreatedAt, word.UpdatedAt,
		).Scan(&word.ID)
	}

	query := `
		INSERT INTO words (term, translation, category, level, row_version, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := DB.ExecContext(ctx, query,
		word.Term, word.Translation, word.Category, word.Level,
		word.RowVersion, word.Deleted, word.CreatedAt, word.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create word: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %v", err)
	}
	word.ID = id
	return nil
}

// Update overwrites an existing word and rotates its row version
func (r *WordRepository) Update(ctx context.Context, word *models.Word) error {
	word.RowVersion = uuid.NewString()
	word.UpdatedAt = time.Now().UTC()

	query := DB.Rebind(`
		UPDATE words SET
			term = ?, translation = ?, category = ?, level = ?,
			row_version = ?, deleted = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := DB.ExecContext(ctx, query,
		word.Term, word.Translation, word.Category, word.Level,
		word.RowVersion, word.Deleted, word.UpdatedAt, word.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update word: %v", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rows == 0 {
		return fmt.Errorf("word %d not found", word.ID)
	}
	return nil
}

// Upsert writes a server-authoritative copy of a word, keeping the
// server-assigned ID and row version intact. Used by pull.
func (r *WordRepository) Upsert(ctx context.Context, word *models.Word) error {
	existing, err := r.GetByID(ctx, word.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		query := DB.Rebind(`
			INSERT INTO words (id, term, translation, category, level, row_version, deleted, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if _, err := DB.ExecContext(ctx, query,
			word.ID, word.Term, word.Translation, word.Category, word.Level,
			word.RowVersion, word.Deleted, word.CreatedAt, word.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert word: %v", err)
		}
		return nil
	}

	query := DB.Rebind(`
		UPDATE words SET
			term = ?, translation = ?, category = ?, level = ?,
			row_version = ?, deleted = ?, updated_at = ?
		WHERE id = ?
	`)
	if _, err := DB.ExecContext(ctx, query,
		word.Term, word.Translation, word.Category, word.Level,
		word.RowVersion, word.Deleted, word.UpdatedAt, word.ID,
	); err != nil {
		return fmt.Errorf("failed to overwrite word: %v", err)
	}
	return nil
}

// MarkDeleted tombstones a word so the deletion can propagate on sync
func (r *WordRepository) MarkDeleted(ctx context.Context, id int64) error {
	query := DB.Rebind("UPDATE words SET deleted = ?, row_version = ?, updated_at = ? WHERE id = ?")
	if _, err := DB.ExecContext(ctx, query, true, uuid.NewString(), time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to mark word deleted: %v", err)
	}
	return nil
}
