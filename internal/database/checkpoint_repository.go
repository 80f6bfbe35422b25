package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/lexisync/pkg/models"
)

// CheckpointRepository handles per-table sync high-water marks
type CheckpointRepository struct{}

// NewCheckpointRepository creates a new repository instance
func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{}
}

// Get returns the checkpoint for (owner, table), or (nil, nil) when no
// reconciliation has completed yet.
func (r *CheckpointRepository) Get(ctx context.Context, ownerID int64, table string) (*models.SyncCheckpoint, error) {
	var cp models.SyncCheckpoint
	query := DB.Rebind("SELECT * FROM sync_checkpoints WHERE owner_id = ? AND table_name = ?")
	err := DB.GetContext(ctx, &cp, query, ownerID, table)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync checkpoint: %v", err)
	}
	return &cp, nil
}

// Advance moves the checkpoint forward and bumps its version. The
// stored time never moves backwards and the version only increases.
func (r *CheckpointRepository) Advance(ctx context.Context, ownerID int64, table string, syncedAt time.Time) (*models.SyncCheckpoint, error) {
	now := time.Now().UTC()

	existing, err := r.Get(ctx, ownerID, table)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		cp := &models.SyncCheckpoint{
			OwnerID:      ownerID,
			TableName:    table,
			LastSyncedAt: syncedAt,
			SyncVersion:  1,
			UpdatedAt:    now,
		}
		query := DB.Rebind(`
			INSERT INTO sync_checkpoints (owner_id, table_name, last_synced_at, sync_version, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`)
		if _, err := DB.ExecContext(ctx, query, cp.OwnerID, cp.TableName, cp.LastSyncedAt, cp.SyncVersion, cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to create sync checkpoint: %v", err)
		}
		return cp, nil
	}

	if syncedAt.Before(existing.LastSyncedAt) {
		syncedAt = existing.LastSyncedAt
	}

	cp := &models.SyncCheckpoint{
		OwnerID:      ownerID,
		TableName:    table,
		LastSyncedAt: syncedAt,
		SyncVersion:  existing.SyncVersion + 1,
		UpdatedAt:    now,
	}
	query := DB.Rebind(`
		UPDATE sync_checkpoints SET last_synced_at = ?, sync_version = ?, updated_at = ?
		WHERE owner_id = ? AND table_name = ?
	`)
	if _, err := DB.ExecContext(ctx, query, cp.LastSyncedAt, cp.SyncVersion, cp.UpdatedAt, ownerID, table); err != nil {
		return nil, fmt.Errorf("failed to advance sync checkpoint: %v", err)
	}
	return cp, nil
}
