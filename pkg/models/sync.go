package models

import "time"

// SyncStatus is the lifecycle state of a reconciliation run
type SyncStatus string

const (
	SyncNotStarted SyncStatus = "not_started"
	SyncInProgress SyncStatus = "in_progress"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
	SyncCancelled  SyncStatus = "cancelled"
)

// SyncDirection selects which half of a reconciliation runs
type SyncDirection string

const (
	DirectionPush SyncDirection = "push"
	DirectionPull SyncDirection = "pull"
	DirectionBoth SyncDirection = "both"
)

// SyncResult summarizes one reconciliation run for one table.
// Errors counts item-level failures (conflicts, rejected items); the
// run still reports Success when only item-level failures occurred.
type SyncResult struct {
	Success        bool          `json:"success"`
	Message        string        `json:"message,omitempty"`
	TableName      string        `json:"table_name"`
	Timestamp      time.Time     `json:"timestamp"`
	ItemsProcessed int           `json:"items_processed"`
	ItemsCreated   int           `json:"items_created"`
	ItemsUpdated   int           `json:"items_updated"`
	ItemsDeleted   int           `json:"items_deleted"`
	Errors         int           `json:"errors"`
	ErrorMessages  []string      `json:"error_messages,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// SyncInfo is a point-in-time snapshot of the reconciler's observable state
type SyncInfo struct {
	Status            SyncStatus            `json:"status"`
	LastSyncTime      *time.Time            `json:"last_sync_time,omitempty"`
	IsSyncing         bool                  `json:"is_syncing"`
	CurrentOperation  string                `json:"current_operation,omitempty"`
	Progress          int                   `json:"progress"`
	TotalItems        int                   `json:"total_items"`
	TableResults      map[string]SyncResult `json:"table_results"`
	LastError         string                `json:"last_error,omitempty"`
	NextScheduledSync *time.Time            `json:"next_scheduled_sync,omitempty"`
}

// SyncLogEntry is one line in the bounded in-memory sync log
type SyncLogEntry struct {
	Timestamp      time.Time     `json:"timestamp"`
	Operation      string        `json:"operation"`
	TableName      string        `json:"table_name,omitempty"`
	Status         SyncStatus    `json:"status"`
	Message        string        `json:"message,omitempty"`
	Duration       time.Duration `json:"duration,omitempty"`
	ItemsProcessed int           `json:"items_processed,omitempty"`
}
