package models

// StudyResult is one answer from a study session
type StudyResult struct {
	WordID    int64 `json:"word_id"`
	IsCorrect bool  `json:"is_correct"`
}

// StudyBatchSummary reports what happened to a batch of study results.
// Skipped entries reference words that do not exist in the catalog.
type StudyBatchSummary struct {
	AppliedCount   int     `json:"applied_count"`
	SkippedWordIDs []int64 `json:"skipped_word_ids,omitempty"`
}
