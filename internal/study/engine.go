// Package study applies study-session results to the progress store
// and selects what to review next.
package study

import (
	"context"
	"fmt"
	"time"

	"github.com/example/lexisync/internal/database"
	"github.com/example/lexisync/internal/srs"
	"github.com/example/lexisync/pkg/models"
	"github.com/google/uuid"
)

// Memory strength adjustments per answer
const (
	strengthGain = 10
	strengthLoss = 5
	maxStrength  = 100
	minStrength  = 0
)

// Engine is the session update engine. One batch of results is applied
// as a single atomic unit; progress counters never decrease here.
type Engine struct {
	progressRepo *database.ProgressRepository
	wordRepo     *database.WordRepository
}

// NewEngine creates a new engine instance
func NewEngine() *Engine {
	return &Engine{
		progressRepo: database.NewProgressRepository(),
		wordRepo:     database.NewWordRepository(),
	}
}

// ApplyStudyBatch applies one session's results in list order. Results
// for unknown words are skipped and reported; everything else is
// persisted in one transaction or not at all.
func (e *Engine) ApplyStudyBatch(ctx context.Context, userID int64, results []models.StudyResult) (*models.StudyBatchSummary, error) {
	summary := &models.StudyBatchSummary{}
	if len(results) == 0 {
		return summary, nil
	}

	now := time.Now().UTC()

	// Working set keyed by word so a word answered twice in one
	// session builds on its in-batch state, not the stored row.
	working := make(map[int64]*models.LearningProgress)
	ordered := make([]*models.LearningProgress, 0, len(results))
	skipped := make(map[int64]bool)

	for _, result := range results {
		if skipped[result.WordID] {
			continue
		}

		progress, ok := working[result.WordID]
		if !ok {
			exists, err := e.wordRepo.Exists(ctx, result.WordID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve word %d: %v", result.WordID, err)
			}
			if !exists {
				skipped[result.WordID] = true
				summary.SkippedWordIDs = append(summary.SkippedWordIDs, result.WordID)
				continue
			}

			progress, err = e.progressRepo.GetByUserAndWord(ctx, userID, result.WordID)
			if err != nil {
				return nil, err
			}
			if progress == nil {
				progress = &models.LearningProgress{
					UserID:    userID,
					WordID:    result.WordID,
					CreatedAt: now,
				}
			}
			working[result.WordID] = progress
			ordered = append(ordered, progress)
		}

		progress.StudyCount++
		if result.IsCorrect {
			progress.CorrectCount++
			progress.MemoryStrength = min(maxStrength, progress.MemoryStrength+strengthGain)
		} else {
			progress.IncorrectCount++
			progress.MemoryStrength = max(minStrength, progress.MemoryStrength-strengthLoss)
		}

		studiedAt := now
		nextReview := srs.NextReviewDate(progress.MemoryStrength, now)
		progress.LastStudiedAt = &studiedAt
		progress.NextReviewAt = &nextReview
		progress.RowVersion = uuid.NewString()
		progress.UpdatedAt = now

		summary.AppliedCount++
	}

	if err := e.progressRepo.SaveBatch(ctx, ordered); err != nil {
		return nil, fmt.Errorf("failed to persist study batch: %v", err)
	}

	return summary, nil
}

// GetDueWords returns up to count word IDs for the next session: due
// records in priority order, padded with words the user has never seen.
func (e *Engine) GetDueWords(ctx context.Context, userID int64, count int) ([]int64, error) {
	if count <= 0 {
		return nil, nil
	}

	due, err := e.progressRepo.GetDueForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var unseen []int64
	if len(due) < count {
		unseen, err = e.wordRepo.GetUnstudiedIDs(ctx, userID, count-len(due))
		if err != nil {
			return nil, err
		}
	}

	return srs.SelectStudySet(due, unseen, count), nil
}

// Statistics returns summary numbers about the user's learning state
func (e *Engine) Statistics(ctx context.Context, userID int64) (map[string]interface{}, error) {
	return e.progressRepo.Statistics(ctx, userID)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
