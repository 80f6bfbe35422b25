package sync

import (
	"fmt"
	"testing"
	"time"

	"github.com/example/lexisync/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestBeginRunGuardsSingleRun(t *testing.T) {
	tracker := newStatusTracker()

	assert.True(t, tracker.beginRun("first", 10))
	assert.False(t, tracker.beginRun("second", 5), "a run in flight blocks the slot")

	tracker.finishRun(models.SyncCompleted, "")
	assert.True(t, tracker.beginRun("third", 1), "finishing releases the slot")
}

func TestFinishRunRecordsTerminalState(t *testing.T) {
	tracker := newStatusTracker()
	tracker.beginRun("sync words", 3)
	tracker.finishRun(models.SyncFailed, "remote unreachable")

	info := tracker.snapshot()
	assert.False(t, info.IsSyncing)
	assert.Equal(t, models.SyncFailed, info.Status)
	assert.Equal(t, "remote unreachable", info.LastError)
	assert.NotNil(t, info.LastSyncTime)
	assert.Empty(t, info.CurrentOperation)
}

func TestSnapshotIsDetached(t *testing.T) {
	tracker := newStatusTracker()
	tracker.recordTableResult("words", models.SyncResult{TableName: "words", ItemsProcessed: 5})

	info := tracker.snapshot()
	info.TableResults["words"] = models.SyncResult{TableName: "words", ItemsProcessed: 99}

	assert.Equal(t, 5, tracker.snapshot().TableResults["words"].ItemsProcessed,
		"mutating a snapshot must not leak back")
}

func TestSyncLogIsBoundedAndNewestFirst(t *testing.T) {
	tracker := newStatusTracker()
	for i := 0; i < maxLogEntries+10; i++ {
		tracker.addLogEntry(models.SyncLogEntry{
			Timestamp: time.Now().UTC(),
			Operation: fmt.Sprintf("run %d", i),
			Status:    models.SyncCompleted,
		})
	}

	all := tracker.logEntries(0)
	assert.Len(t, all, maxLogEntries)
	assert.Equal(t, fmt.Sprintf("run %d", maxLogEntries+9), all[0].Operation, "newest entry first")

	limited := tracker.logEntries(3)
	assert.Len(t, limited, 3)
	assert.Equal(t, all[0].Operation, limited[0].Operation)

	tracker.clearLog()
	assert.Empty(t, tracker.logEntries(0))
}
