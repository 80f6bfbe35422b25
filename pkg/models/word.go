package models

import "time"

// Word represents a vocabulary item in the catalog
type Word struct {
	ID          int64     `json:"id" db:"id"`
	Term        string    `json:"term" db:"term"`
	Translation string    `json:"translation" db:"translation"`
	Category    string    `json:"category" db:"category"`
	Level       int       `json:"level" db:"level"` // 1-5 scale of difficulty
	RowVersion  string    `json:"row_version" db:"row_version"`
	Deleted     bool      `json:"deleted" db:"deleted"` // tombstone for sync propagation
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
