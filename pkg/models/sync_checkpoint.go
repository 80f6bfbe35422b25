package models

import "time"

// SyncCheckpoint is the high-water mark for one owner and table.
// LastSyncedAt only moves forward and SyncVersion only increases.
type SyncCheckpoint struct {
	OwnerID      int64     `json:"owner_id" db:"owner_id"`
	TableName    string    `json:"table_name" db:"table_name"`
	LastSyncedAt time.Time `json:"last_synced_at" db:"last_synced_at"`
	SyncVersion  int64     `json:"sync_version" db:"sync_version"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
