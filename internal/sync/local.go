package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/lexisync/internal/database"
	"github.com/example/lexisync/pkg/models"
)

// applyOutcome says what applying one pulled record did locally
type applyOutcome int

const (
	outcomeCreated applyOutcome = iota
	outcomeUpdated
	outcomeDeleted
	outcomeIgnored
)

// LocalTable adapts one synchronized table to the reconciler. RecordID
// is the cross-device key: the word ID for both the catalog and the
// per-user progress rows, since local row IDs differ between devices.
type LocalTable interface {
	Name() string
	// Apply merges one pulled server record into local storage
	Apply(ctx context.Context, userID int64, rec RemoteRecord) (applyOutcome, error)
}

// progressTable merges pulled learning progress. The server copy wins
// only when it is strictly newer; on a timestamp tie the local row stays.
type progressTable struct {
	repo *database.ProgressRepository
}

// NewProgressTable creates the sync adapter for learning progress
func NewProgressTable() LocalTable {
	return &progressTable{repo: database.NewProgressRepository()}
}

func (t *progressTable) Name() string { return "learning_progress" }

func (t *progressTable) Apply(ctx context.Context, userID int64, rec RemoteRecord) (applyOutcome, error) {
	if rec.Deleted {
		if err := t.repo.DeleteByUserAndWord(ctx, userID, rec.RecordID); err != nil {
			return outcomeIgnored, err
		}
		return outcomeDeleted, nil
	}

	var incoming models.LearningProgress
	if err := json.Unmarshal(rec.Payload, &incoming); err != nil {
		return outcomeIgnored, fmt.Errorf("%w: bad progress payload for record %d: %v", ErrValidation, rec.RecordID, err)
	}
	incoming.UserID = userID
	incoming.WordID = rec.RecordID
	if incoming.RowVersion == "" {
		incoming.RowVersion = rec.RowVersion
	}
	if incoming.UpdatedAt.IsZero() {
		incoming.UpdatedAt = rec.UpdatedAt
	}

	existing, err := t.repo.GetByUserAndWord(ctx, userID, incoming.WordID)
	if err != nil {
		return outcomeIgnored, err
	}

	if existing == nil {
		incoming.ID = 0
		if incoming.CreatedAt.IsZero() {
			incoming.CreatedAt = rec.CreatedAt
		}
		if err := t.repo.Upsert(ctx, &incoming); err != nil {
			return outcomeIgnored, err
		}
		return outcomeCreated, nil
	}

	if !newerThan(rec.UpdatedAt, existing.UpdatedAt) {
		return outcomeIgnored, nil
	}

	incoming.ID = existing.ID
	incoming.CreatedAt = existing.CreatedAt
	if err := t.repo.Upsert(ctx, &incoming); err != nil {
		return outcomeIgnored, err
	}
	return outcomeUpdated, nil
}

// wordTable merges pulled catalog words, including tombstones
type wordTable struct {
	repo *database.WordRepository
}

// NewWordTable creates the sync adapter for the vocabulary catalog
func NewWordTable() LocalTable {
	return &wordTable{repo: database.NewWordRepository()}
}

func (t *wordTable) Name() string { return "words" }

func (t *wordTable) Apply(ctx context.Context, userID int64, rec RemoteRecord) (applyOutcome, error) {
	if rec.Deleted {
		existing, err := t.repo.GetByID(ctx, rec.RecordID)
		if err != nil {
			return outcomeIgnored, err
		}
		if existing == nil || existing.Deleted {
			return outcomeIgnored, nil
		}
		if err := t.repo.MarkDeleted(ctx, rec.RecordID); err != nil {
			return outcomeIgnored, err
		}
		return outcomeDeleted, nil
	}

	var incoming models.Word
	if err := json.Unmarshal(rec.Payload, &incoming); err != nil {
		return outcomeIgnored, fmt.Errorf("%w: bad word payload for record %d: %v", ErrValidation, rec.RecordID, err)
	}
	incoming.ID = rec.RecordID
	if incoming.RowVersion == "" {
		incoming.RowVersion = rec.RowVersion
	}
	if incoming.UpdatedAt.IsZero() {
		incoming.UpdatedAt = rec.UpdatedAt
	}
	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = rec.CreatedAt
	}

	existing, err := t.repo.GetByID(ctx, incoming.ID)
	if err != nil {
		return outcomeIgnored, err
	}

	if existing == nil {
		if err := t.repo.Upsert(ctx, &incoming); err != nil {
			return outcomeIgnored, err
		}
		return outcomeCreated, nil
	}

	if !newerThan(rec.UpdatedAt, existing.UpdatedAt) {
		return outcomeIgnored, nil
	}

	incoming.CreatedAt = existing.CreatedAt
	if err := t.repo.Upsert(ctx, &incoming); err != nil {
		return outcomeIgnored, err
	}
	return outcomeUpdated, nil
}

// newerThan reports whether remote is strictly after local. Ties keep
// the local row.
func newerThan(remote, local time.Time) bool {
	return remote.After(local)
}
