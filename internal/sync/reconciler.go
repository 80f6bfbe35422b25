// Package sync reconciles local state with the remote sync API. Push
// drains the pending-change outbox in batches; pull applies the
// server's changes since the per-table checkpoint. Only one run is
// ever in flight.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/example/lexisync/internal/config"
	"github.com/example/lexisync/internal/database"
	"github.com/example/lexisync/pkg/models"
)

// Reconciler drives push/pull reconciliation for one local user
type Reconciler struct {
	opts        config.SyncOptions
	userID      int64
	remote      RemoteStore
	pending     *database.PendingChangeRepository
	checkpoints *database.CheckpointRepository
	tables      map[string]LocalTable
	status      *statusTracker

	mu     stdsync.Mutex
	cancel context.CancelFunc
}

// NewReconciler creates a reconciler over the given tables
func NewReconciler(userID int64, opts config.SyncOptions, remote RemoteStore, tables ...LocalTable) *Reconciler {
	byName := make(map[string]LocalTable, len(tables))
	for _, t := range tables {
		byName[t.Name()] = t
	}
	return &Reconciler{
		opts:        opts,
		userID:      userID,
		remote:      remote,
		pending:     database.NewPendingChangeRepository(),
		checkpoints: database.NewCheckpointRepository(),
		tables:      byName,
		status:      newStatusTracker(),
	}
}

// QueueChange records a local mutation in the outbox so the next push
// carries it to the server.
func (r *Reconciler) QueueChange(ctx context.Context, table string, op models.ChangeOperation, recordID *int64, payload interface{}, rowVersion string) error {
	if _, ok := r.tables[table]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	var body string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal change payload: %v", err)
		}
		body = string(data)
	}

	return r.pending.Enqueue(ctx, &models.PendingChange{
		UserID:      r.userID,
		EntityTable: table,
		RecordID:    recordID,
		Operation:   op,
		Payload:     body,
		RowVersion:  rowVersion,
	})
}

// RunSync reconciles one table in the given direction. A second call
// while a run is in flight fails with ErrSyncInProgress.
func (r *Reconciler) RunSync(ctx context.Context, table string, direction models.SyncDirection) (models.SyncResult, error) {
	if _, ok := r.tables[table]; !ok {
		return models.SyncResult{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	if !r.status.beginRun(fmt.Sprintf("sync %s (%s)", table, direction), 0) {
		return models.SyncResult{}, ErrSyncInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.setCancel(cancel)
	defer r.clearCancel()

	started := time.Now()
	result := r.syncTable(runCtx, table, direction)
	result.Duration = time.Since(started)

	r.status.recordTableResult(table, result)
	r.finish(runCtx, "sync "+table, result)

	return result, nil
}

// SyncAll reconciles every configured table in order, in the direction
// the options select. Table order matters: the catalog syncs before the
// progress rows that reference it.
func (r *Reconciler) SyncAll(ctx context.Context) (models.SyncResult, error) {
	if !r.status.beginRun("sync all tables", 0) {
		return models.SyncResult{}, ErrSyncInProgress
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.setCancel(cancel)
	defer r.clearCancel()

	started := time.Now()
	total := models.SyncResult{
		Success:   true,
		TableName: "all",
		Timestamp: started.UTC(),
	}

	for _, table := range r.opts.SyncTables {
		if _, ok := r.tables[table]; !ok {
			total.Errors++
			total.ErrorMessages = append(total.ErrorMessages, fmt.Sprintf("%s: not configured for synchronization", table))
			continue
		}
		if runCtx.Err() != nil {
			break
		}

		result := r.syncTable(runCtx, table, r.opts.Direction)
		r.status.recordTableResult(table, result)

		total.ItemsProcessed += result.ItemsProcessed
		total.ItemsCreated += result.ItemsCreated
		total.ItemsUpdated += result.ItemsUpdated
		total.ItemsDeleted += result.ItemsDeleted
		total.Errors += result.Errors
		total.ErrorMessages = append(total.ErrorMessages, result.ErrorMessages...)
		if !result.Success {
			total.Success = false
		}
	}

	total.Duration = time.Since(started)
	r.finish(runCtx, "sync all", total)

	return total, nil
}

// CancelSync requests cancellation of the run in flight, if any. The
// run stops at its next batch boundary.
func (r *Reconciler) CancelSync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// GetSyncInfo returns a snapshot of the reconciler's observable state
func (r *Reconciler) GetSyncInfo() models.SyncInfo {
	return r.status.snapshot()
}

// GetSyncLog returns up to max recent log entries, newest first
func (r *Reconciler) GetSyncLog(max int) []models.SyncLogEntry {
	return r.status.logEntries(max)
}

// ClearSyncLog drops the in-memory sync log
func (r *Reconciler) ClearSyncLog() {
	r.status.clearLog()
}

// SetNextScheduledSync publishes when the background timer fires next
func (r *Reconciler) SetNextScheduledSync(t time.Time) {
	r.status.setNextScheduledSync(t)
}

func (r *Reconciler) setCancel(cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel
}

func (r *Reconciler) clearCancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// finish records the terminal state of the run that holds the slot
func (r *Reconciler) finish(runCtx context.Context, operation string, result models.SyncResult) {
	status := models.SyncCompleted
	lastError := ""
	switch {
	case runCtx.Err() != nil:
		status = models.SyncCancelled
		lastError = "sync cancelled"
	case !result.Success:
		status = models.SyncFailed
		lastError = result.Message
		if lastError == "" && len(result.ErrorMessages) > 0 {
			lastError = result.ErrorMessages[0]
		}
	}

	r.status.finishRun(status, lastError)
	r.status.addLogEntry(models.SyncLogEntry{
		Timestamp:      time.Now().UTC(),
		Operation:      operation,
		TableName:      result.TableName,
		Status:         status,
		Message:        result.Message,
		Duration:       result.Duration,
		ItemsProcessed: result.ItemsProcessed,
	})
}

// syncTable runs the selected halves for one table and merges their
// counters. Any transport failure fails the run; item-level failures
// only raise the error count.
func (r *Reconciler) syncTable(ctx context.Context, table string, direction models.SyncDirection) models.SyncResult {
	result := models.SyncResult{
		Success:   true,
		TableName: table,
		Timestamp: time.Now().UTC(),
	}

	transportFailed := false

	if direction == models.DirectionPush || direction == models.DirectionBoth {
		if failed := r.pushTable(ctx, table, &result); failed {
			transportFailed = true
		}
	}
	if direction == models.DirectionPull || direction == models.DirectionBoth {
		if ctx.Err() == nil {
			if failed := r.pullTable(ctx, table, &result); failed {
				transportFailed = true
			}
		}
	}

	if transportFailed {
		result.Success = false
		result.Message = fmt.Sprintf("synchronization of %s hit transport failures", table)
	} else if result.Errors > 0 {
		result.Message = fmt.Sprintf("synchronized %s with %d item errors", table, result.Errors)
	} else {
		result.Message = fmt.Sprintf("synchronized %s", table)
	}

	return result
}

// pushTable drains the outbox for one table in batches. A transport
// failure marks the whole batch failed but later batches still run.
// Returns true when any batch hit a transport failure.
func (r *Reconciler) pushTable(ctx context.Context, table string, result *models.SyncResult) bool {
	changes, err := r.pending.GetForTable(ctx, r.userID, table)
	if err != nil {
		result.Errors++
		result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("push %s: %v", table, err))
		return true
	}
	if len(changes) == 0 {
		return false
	}

	transportFailed := false

	for start := 0; start < len(changes); start += r.opts.MaxBatchSize {
		// Cancellation is honored only between batches
		if ctx.Err() != nil {
			return transportFailed
		}

		end := start + r.opts.MaxBatchSize
		if end > len(changes) {
			end = len(changes)
		}
		batch := changes[start:end]

		r.status.setOperation(fmt.Sprintf("pushing %s (%d-%d of %d)", table, start+1, end, len(changes)), start)

		items := make([]PushItem, 0, len(batch))
		for _, c := range batch {
			items = append(items, PushItem{
				ChangeID:   c.ChangeID,
				Operation:  c.Operation,
				RecordID:   c.RecordID,
				Payload:    json.RawMessage(c.Payload),
				RowVersion: c.RowVersion,
			})
		}

		receipts, err := r.remote.PushBatch(ctx, r.userID, table, items)
		if err != nil {
			transportFailed = true
			result.Errors += len(batch)
			result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("push %s: %v", table, err))
			for _, c := range batch {
				if markErr := r.pending.MarkFailed(ctx, c.ChangeID, err.Error()); markErr != nil {
					log.Printf("Failed to mark pending change %s: %v", c.ChangeID, markErr)
				}
			}
			continue
		}

		byChange := make(map[string]PushReceipt, len(receipts))
		for _, receipt := range receipts {
			byChange[receipt.ChangeID] = receipt
		}

		for _, c := range batch {
			result.ItemsProcessed++

			receipt, ok := byChange[c.ChangeID]
			if !ok {
				result.Errors++
				result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("push %s: no receipt for change %s", table, c.ChangeID))
				if err := r.pending.MarkFailed(ctx, c.ChangeID, "no receipt from server"); err != nil {
					log.Printf("Failed to mark pending change %s: %v", c.ChangeID, err)
				}
				continue
			}

			switch receipt.Status {
			case ReceiptAccepted:
				if err := r.pending.Clear(ctx, c.ChangeID); err != nil {
					log.Printf("Failed to clear pending change %s: %v", c.ChangeID, err)
					continue
				}
				switch c.Operation {
				case models.OpCreate:
					result.ItemsCreated++
				case models.OpUpdate:
					result.ItemsUpdated++
				case models.OpDelete:
					result.ItemsDeleted++
				}
			default:
				// Conflict, forbidden and invalid receipts fail only
				// this item; the change stays queued with its reason.
				result.Errors++
				kind := ErrValidation
				switch receipt.Status {
				case ReceiptConflict:
					kind = ErrConflict
				case ReceiptForbidden:
					kind = ErrOwnership
				}
				reason := kind.Error()
				if receipt.Message != "" {
					reason = fmt.Sprintf("%s: %s", reason, receipt.Message)
				}
				result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("push %s change %s: %s", table, c.ChangeID, reason))
				if err := r.pending.MarkFailed(ctx, c.ChangeID, reason); err != nil {
					log.Printf("Failed to mark pending change %s: %v", c.ChangeID, err)
				}
			}
		}
	}

	return transportFailed
}

// pullTable fetches the server's changes since the table checkpoint and
// applies them in batches. The checkpoint advances only after every
// batch applied; a cancelled or failed pull leaves it untouched so the
// next run re-fetches the same window. Returns true on transport failure.
func (r *Reconciler) pullTable(ctx context.Context, table string, result *models.SyncResult) bool {
	local := r.tables[table]

	var since time.Time
	checkpoint, err := r.checkpoints.Get(ctx, r.userID, table)
	if err != nil {
		result.Errors++
		result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("pull %s: %v", table, err))
		return true
	}
	if checkpoint != nil {
		since = checkpoint.LastSyncedAt
	}

	r.status.setOperation("fetching changes for "+table, 0)

	records, err := r.remote.FetchChanges(ctx, r.userID, table, since)
	if err != nil {
		result.Errors++
		result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("pull %s: %v", table, err))
		return true
	}
	if len(records) == 0 {
		return false
	}

	var watermark time.Time

	for start := 0; start < len(records); start += r.opts.MaxBatchSize {
		if ctx.Err() != nil {
			return false
		}

		end := start + r.opts.MaxBatchSize
		if end > len(records) {
			end = len(records)
		}

		r.status.setOperation(fmt.Sprintf("applying %s (%d-%d of %d)", table, start+1, end, len(records)), start)

		for _, rec := range records[start:end] {
			result.ItemsProcessed++
			if rec.UpdatedAt.After(watermark) {
				watermark = rec.UpdatedAt
			}

			// A queued local change outranks a remote tombstone; the
			// push half will settle the record's fate.
			if rec.Deleted {
				queued, err := r.pending.HasForRecord(ctx, r.userID, table, rec.RecordID)
				if err != nil {
					result.Errors++
					result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("pull %s record %d: %v", table, rec.RecordID, err))
					continue
				}
				if queued {
					continue
				}
			}

			outcome, err := local.Apply(ctx, r.userID, rec)
			if err != nil {
				result.Errors++
				result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("pull %s record %d: %v", table, rec.RecordID, err))
				continue
			}
			switch outcome {
			case outcomeCreated:
				result.ItemsCreated++
			case outcomeUpdated:
				result.ItemsUpdated++
			case outcomeDeleted:
				result.ItemsDeleted++
			}
		}
	}

	if _, err := r.checkpoints.Advance(ctx, r.userID, table, watermark); err != nil {
		result.Errors++
		result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("pull %s: %v", table, err))
	}

	return false
}
