package sync

import (
	"sync"
	"time"

	"github.com/example/lexisync/pkg/models"
)

// maxLogEntries bounds the in-memory sync log
const maxLogEntries = 1000

// statusTracker holds the process-wide observable state of the
// reconciler. All fields are guarded by one lock so readers never see
// an interleaved partial update.
type statusTracker struct {
	mu   sync.Mutex
	info models.SyncInfo
	log  []models.SyncLogEntry
}

func newStatusTracker() *statusTracker {
	return &statusTracker{
		info: models.SyncInfo{
			Status:       models.SyncNotStarted,
			TableResults: make(map[string]models.SyncResult),
		},
	}
}

// beginRun marks a run as in progress. It returns false when another
// run already holds the slot; the caller must reject, not queue.
func (s *statusTracker) beginRun(operation string, totalItems int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.info.IsSyncing {
		return false
	}
	s.info.IsSyncing = true
	s.info.Status = models.SyncInProgress
	s.info.CurrentOperation = operation
	s.info.Progress = 0
	s.info.TotalItems = totalItems
	s.info.LastError = ""
	return true
}

// setOperation updates the observable progress of the current run
func (s *statusTracker) setOperation(operation string, progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.CurrentOperation = operation
	s.info.Progress = progress
}

// finishRun records the terminal state of a run and releases the slot
func (s *statusTracker) finishRun(status models.SyncStatus, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.info.IsSyncing = false
	s.info.Status = status
	s.info.CurrentOperation = ""
	s.info.Progress = s.info.TotalItems
	s.info.LastSyncTime = &now
	s.info.LastError = lastError
}

// recordTableResult stores the latest result for one table
func (s *statusTracker) recordTableResult(table string, result models.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.TableResults[table] = result
}

// setNextScheduledSync publishes when the background timer fires next
func (s *statusTracker) setNextScheduledSync(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info.NextScheduledSync = &t
}

// snapshot returns a deep copy safe to hand to callers while a run is
// in flight.
func (s *statusTracker) snapshot() models.SyncInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := s.info
	info.TableResults = make(map[string]models.SyncResult, len(s.info.TableResults))
	for k, v := range s.info.TableResults {
		info.TableResults[k] = v
	}
	if s.info.LastSyncTime != nil {
		t := *s.info.LastSyncTime
		info.LastSyncTime = &t
	}
	if s.info.NextScheduledSync != nil {
		t := *s.info.NextScheduledSync
		info.NextScheduledSync = &t
	}
	return info
}

// addLogEntry appends to the bounded sync log
func (s *statusTracker) addLogEntry(entry models.SyncLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log = append(s.log, entry)
	if len(s.log) > maxLogEntries {
		s.log = s.log[len(s.log)-maxLogEntries:]
	}
}

// logEntries returns the newest entries first, up to max
func (s *statusTracker) logEntries(max int) []models.SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max <= 0 || max > len(s.log) {
		max = len(s.log)
	}
	entries := make([]models.SyncLogEntry, 0, max)
	for i := len(s.log) - 1; i >= 0 && len(entries) < max; i-- {
		entries = append(entries, s.log[i])
	}
	return entries
}

// clearLog drops all sync log entries
func (s *statusTracker) clearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}
