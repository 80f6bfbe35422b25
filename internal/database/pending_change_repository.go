package database

import (
	"context"
	"fmt"
	"time"

	"github.com/example/lexisync/pkg/models"
	"github.com/google/uuid"
)

// PendingChangeRepository handles the client-side outbox of
// unsynchronized local mutations.
type PendingChangeRepository struct{}

// NewPendingChangeRepository creates a new repository instance
func NewPendingChangeRepository() *PendingChangeRepository {
	return &PendingChangeRepository{}
}

// Enqueue stores a new pending change. A change ID is assigned when
// the caller did not provide one.
func (r *PendingChangeRepository) Enqueue(ctx context.Context, change *models.PendingChange) error {
	if change.ChangeID == "" {
		change.ChangeID = uuid.NewString()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}

	query := DB.Rebind(`
		INSERT INTO pending_changes (
			change_id, user_id, entity_table, record_id, operation,
			payload, row_version, attempted_at, last_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if _, err := DB.ExecContext(ctx, query,
		change.ChangeID, change.UserID, change.EntityTable, change.RecordID,
		change.Operation, change.Payload, change.RowVersion,
		change.AttemptedAt, change.LastError, change.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to enqueue pending change: %v", err)
	}
	return nil
}

// GetForTable returns the user's pending changes for one table in the
// order they were queued.
func (r *PendingChangeRepository) GetForTable(ctx context.Context, userID int64, table string) ([]models.PendingChange, error) {
	var changes []models.PendingChange
	query := DB.Rebind(`
		SELECT * FROM pending_changes
		WHERE user_id = ? AND entity_table = ?
		ORDER BY created_at ASC, change_id ASC
	`)
	if err := DB.SelectContext(ctx, &changes, query, userID, table); err != nil {
		return nil, fmt.Errorf("failed to get pending changes: %v", err)
	}
	return changes, nil
}

// Clear removes an acknowledged change from the outbox
func (r *PendingChangeRepository) Clear(ctx context.Context, changeID string) error {
	query := DB.Rebind("DELETE FROM pending_changes WHERE change_id = ?")
	if _, err := DB.ExecContext(ctx, query, changeID); err != nil {
		return fmt.Errorf("failed to clear pending change: %v", err)
	}
	return nil
}

// MarkFailed records why a push attempt did not clear the change. The
// row stays queued so the next run can retry it.
func (r *PendingChangeRepository) MarkFailed(ctx context.Context, changeID, reason string) error {
	query := DB.Rebind(`
		UPDATE pending_changes SET attempted_at = ?, last_error = ?
		WHERE change_id = ?
	`)
	if _, err := DB.ExecContext(ctx, query, time.Now().UTC(), reason, changeID); err != nil {
		return fmt.Errorf("failed to mark pending change: %v", err)
	}
	return nil
}

// HasForRecord reports whether the user has a queued change touching
// the given record.
func (r *PendingChangeRepository) HasForRecord(ctx context.Context, userID int64, table string, recordID int64) (bool, error) {
	var count int
	query := DB.Rebind(`
		SELECT COUNT(*) FROM pending_changes
		WHERE user_id = ? AND entity_table = ? AND record_id = ?
	`)
	if err := DB.GetContext(ctx, &count, query, userID, table, recordID); err != nil {
		return false, fmt.Errorf("failed to check pending changes: %v", err)
	}
	return count > 0, nil
}
