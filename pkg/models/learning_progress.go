package models

import "time"

// LearningProgress tracks a user's mastery of a single vocabulary word.
// There is at most one row per (user_id, word_id) pair.
type LearningProgress struct {
	ID             int64      `json:"id" db:"id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	WordID         int64      `json:"word_id" db:"word_id"`
	StudyCount     int        `json:"study_count" db:"study_count"`
	CorrectCount   int        `json:"correct_count" db:"correct_count"`
	IncorrectCount int        `json:"incorrect_count" db:"incorrect_count"`
	MemoryStrength int        `json:"memory_strength" db:"memory_strength"` // 0-100 retention proxy
	LastStudiedAt  *time.Time `json:"last_studied_at" db:"last_studied_at"` // nil before first study
	NextReviewAt   *time.Time `json:"next_review_at" db:"next_review_at"`   // nil means review immediately
	RowVersion     string     `json:"row_version" db:"row_version"`         // concurrency token, regenerated on every write
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
