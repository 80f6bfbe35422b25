package models

import "time"

// ChangeOperation identifies what a pending change does to its record
type ChangeOperation string

const (
	// OpCreate inserts a new record on the server
	OpCreate ChangeOperation = "create"
	// OpUpdate overwrites an existing record, guarded by its row version
	OpUpdate ChangeOperation = "update"
	// OpDelete removes a record owned by the caller
	OpDelete ChangeOperation = "delete"
)

// PendingChange is a locally queued mutation that has not been
// acknowledged by the server yet. It is removed once the server accepts
// it and kept with LastError set when the push fails.
type PendingChange struct {
	ChangeID    string          `json:"change_id" db:"change_id"`
	UserID      int64           `json:"user_id" db:"user_id"`
	EntityTable string          `json:"entity_table" db:"entity_table"`
	RecordID    *int64          `json:"record_id" db:"record_id"` // nil for not-yet-assigned inserts
	Operation   ChangeOperation `json:"operation" db:"operation"`
	Payload     string          `json:"payload" db:"payload"` // JSON snapshot of the record
	RowVersion  string          `json:"row_version" db:"row_version"`
	AttemptedAt *time.Time      `json:"attempted_at" db:"attempted_at"`
	LastError   *string         `json:"last_error" db:"last_error"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
