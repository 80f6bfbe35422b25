package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"testing"
	"time"

	"github.com/example/lexisync/internal/config"
	"github.com/example/lexisync/internal/database"
	"github.com/example/lexisync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote is a scriptable RemoteStore. Without hooks it accepts
// every pushed item and returns no pulled records.
type fakeRemote struct {
	pushFunc  func(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error)
	fetchFunc func(ctx context.Context, userID int64, table string, since time.Time) ([]RemoteRecord, error)
}

func (f *fakeRemote) PushBatch(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error) {
	if f.pushFunc != nil {
		return f.pushFunc(ctx, userID, table, items)
	}
	return acceptAll(items), nil
}

func (f *fakeRemote) FetchChanges(ctx context.Context, userID int64, table string, since time.Time) ([]RemoteRecord, error) {
	if f.fetchFunc != nil {
		return f.fetchFunc(ctx, userID, table, since)
	}
	return nil, nil
}

func acceptAll(items []PushItem) []PushReceipt {
	receipts := make([]PushReceipt, 0, len(items))
	for _, item := range items {
		receipts = append(receipts, PushReceipt{ChangeID: item.ChangeID, Status: ReceiptAccepted})
	}
	return receipts
}

func setupTestDB(t *testing.T) {
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("SQLITE_PATH", ":memory:")
	require.NoError(t, database.Connect())
	t.Cleanup(func() { database.Close() })
}

func newTestReconciler(remote RemoteStore, batchSize int) *Reconciler {
	opts := config.SyncOptions{
		MaxBatchSize: batchSize,
		Direction:    models.DirectionBoth,
		SyncTables:   []string{"words", "learning_progress"},
	}
	return NewReconciler(1, opts, remote, NewWordTable(), NewProgressTable())
}

func createWord(t *testing.T, term string) *models.Word {
	word := &models.Word{Term: term, Translation: term + "-tr", Category: "test", Level: 1}
	require.NoError(t, database.NewWordRepository().Create(context.Background(), word))
	return word
}

func queueWordChange(t *testing.T, r *Reconciler, op models.ChangeOperation, word *models.Word) {
	var recordID *int64
	var rowVersion string
	if word != nil {
		recordID = &word.ID
		rowVersion = word.RowVersion
	}
	require.NoError(t, r.QueueChange(context.Background(), "words", op, recordID, word, rowVersion))
}

func TestRunSyncUnknownTable(t *testing.T) {
	setupTestDB(t)
	r := newTestReconciler(&fakeRemote{}, 10)

	_, err := r.RunSync(context.Background(), "topics", models.DirectionPush)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestPushClearsAcceptedChanges(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	r := newTestReconciler(&fakeRemote{}, 10)

	created := createWord(t, "apple")
	updated := createWord(t, "pear")
	queueWordChange(t, r, models.OpCreate, created)
	queueWordChange(t, r, models.OpUpdate, updated)

	result, err := r.RunSync(ctx, "words", models.DirectionPush)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ItemsProcessed)
	assert.Equal(t, 1, result.ItemsCreated)
	assert.Equal(t, 1, result.ItemsUpdated)
	assert.Equal(t, 0, result.Errors)

	remaining, err := database.NewPendingChangeRepository().GetForTable(ctx, 1, "words")
	require.NoError(t, err)
	assert.Empty(t, remaining, "accepted changes leave the outbox")

	info := r.GetSyncInfo()
	assert.Equal(t, models.SyncCompleted, info.Status)
	assert.False(t, info.IsSyncing)
	assert.Equal(t, result.Success, info.TableResults["words"].Success)
}

func TestPushConflictFailsOnlyThatItem(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	remote := &fakeRemote{
		pushFunc: func(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error) {
			receipts := acceptAll(items)
			receipts[1] = PushReceipt{ChangeID: items[1].ChangeID, Status: ReceiptConflict, Message: "row version mismatch"}
			return receipts, nil
		},
	}
	r := newTestReconciler(remote, 10)

	for _, term := range []string{"one", "two", "three"} {
		queueWordChange(t, r, models.OpUpdate, createWord(t, term))
	}

	result, err := r.RunSync(ctx, "words", models.DirectionPush)
	require.NoError(t, err)

	assert.True(t, result.Success, "item-level conflicts do not fail the run")
	assert.Equal(t, 3, result.ItemsProcessed)
	assert.Equal(t, 2, result.ItemsUpdated)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, models.SyncCompleted, r.GetSyncInfo().Status)

	remaining, err := database.NewPendingChangeRepository().GetForTable(ctx, 1, "words")
	require.NoError(t, err)
	require.Len(t, remaining, 1, "only the conflicted change stays queued")
	require.NotNil(t, remaining[0].LastError)
	assert.Contains(t, *remaining[0].LastError, "conflict")
	assert.NotNil(t, remaining[0].AttemptedAt)
}

func TestPushForbiddenReceipt(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	remote := &fakeRemote{
		pushFunc: func(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error) {
			return []PushReceipt{{ChangeID: items[0].ChangeID, Status: ReceiptForbidden}}, nil
		},
	}
	r := newTestReconciler(remote, 10)
	queueWordChange(t, r, models.OpDelete, createWord(t, "stolen"))

	result, err := r.RunSync(ctx, "words", models.DirectionPush)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 0, result.ItemsDeleted)

	remaining, err := database.NewPendingChangeRepository().GetForTable(ctx, 1, "words")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Contains(t, *remaining[0].LastError, "forbidden")
}

func TestPushTransportFailureFailsRun(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	remote := &fakeRemote{
		pushFunc: func(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error) {
			return nil, ErrTransport
		},
	}
	r := newTestReconciler(remote, 10)
	queueWordChange(t, r, models.OpCreate, createWord(t, "lost"))
	queueWordChange(t, r, models.OpCreate, createWord(t, "gone"))

	result, err := r.RunSync(ctx, "words", models.DirectionPush)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Errors)
	assert.Equal(t, models.SyncFailed, r.GetSyncInfo().Status)

	remaining, err := database.NewPendingChangeRepository().GetForTable(ctx, 1, "words")
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "a failed batch keeps its changes queued")
}

func TestPushTransportFailureDoesNotAbortLaterBatches(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	calls := 0
	remote := &fakeRemote{
		pushFunc: func(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error) {
			calls++
			if calls == 1 {
				return nil, ErrTransport
			}
			return acceptAll(items), nil
		},
	}
	r := newTestReconciler(remote, 1)
	for _, term := range []string{"first", "second", "third"} {
		queueWordChange(t, r, models.OpCreate, createWord(t, term))
	}

	result, err := r.RunSync(ctx, "words", models.DirectionPush)
	require.NoError(t, err)

	assert.Equal(t, 3, calls, "later batches still run after a transport failure")
	assert.Equal(t, 2, result.ItemsProcessed)
	assert.Equal(t, 1, result.Errors)
	assert.False(t, result.Success, "any transport failure fails the run")

	remaining, err := database.NewPendingChangeRepository().GetForTable(ctx, 1, "words")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestRunSyncRejectsConcurrentRun(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	var once stdsync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	remote := &fakeRemote{
		pushFunc: func(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error) {
			once.Do(func() { close(started) })
			<-release
			return acceptAll(items), nil
		},
	}
	r := newTestReconciler(remote, 10)
	queueWordChange(t, r, models.OpCreate, createWord(t, "slow"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := r.RunSync(ctx, "words", models.DirectionPush)
		assert.NoError(t, err)
		assert.True(t, result.Success)
	}()

	<-started
	_, err := r.RunSync(ctx, "words", models.DirectionPush)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.True(t, r.GetSyncInfo().IsSyncing)

	close(release)
	<-done
	assert.False(t, r.GetSyncInfo().IsSyncing)
}

func TestPullAppliesRecordsAndAdvancesCheckpoint(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	older := time.Now().UTC().Add(-2 * time.Hour)
	newer := time.Now().UTC().Add(-time.Hour)
	var sinceSeen []time.Time

	remote := &fakeRemote{
		fetchFunc: func(ctx context.Context, userID int64, table string, since time.Time) ([]RemoteRecord, error) {
			sinceSeen = append(sinceSeen, since)
			if len(sinceSeen) > 1 {
				return nil, nil
			}
			return []RemoteRecord{
				wordRecord(t, 101, "cat", "v-srv-1", older),
				wordRecord(t, 102, "dog", "v-srv-2", newer),
			}, nil
		},
	}
	r := newTestReconciler(remote, 10)

	result, err := r.RunSync(ctx, "words", models.DirectionPull)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ItemsProcessed)
	assert.Equal(t, 2, result.ItemsCreated)

	wordRepo := database.NewWordRepository()
	cat, err := wordRepo.GetByID(ctx, 101)
	require.NoError(t, err)
	require.NotNil(t, cat)
	assert.Equal(t, "cat", cat.Term)
	assert.Equal(t, "v-srv-1", cat.RowVersion, "server row version is authoritative")

	checkpoint, err := database.NewCheckpointRepository().Get(ctx, 1, "words")
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.WithinDuration(t, newer, checkpoint.LastSyncedAt, time.Second)

	_, err = r.RunSync(ctx, "words", models.DirectionPull)
	require.NoError(t, err)
	require.Len(t, sinceSeen, 2)
	assert.True(t, sinceSeen[0].IsZero(), "first pull fetches everything")
	assert.WithinDuration(t, newer, sinceSeen[1], time.Second, "second pull resumes from the checkpoint")
}

func TestPullStrictlyNewerRemoteWins(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	word := createWord(t, "tie")
	wordRepo := database.NewWordRepository()
	stored, err := wordRepo.GetByID(ctx, word.ID)
	require.NoError(t, err)

	pull := func(rec RemoteRecord) models.SyncResult {
		remote := &fakeRemote{
			fetchFunc: func(ctx context.Context, userID int64, table string, since time.Time) ([]RemoteRecord, error) {
				return []RemoteRecord{rec}, nil
			},
		}
		r := newTestReconciler(remote, 10)
		result, err := r.RunSync(ctx, "words", models.DirectionPull)
		require.NoError(t, err)
		return result
	}

	tied := wordRecord(t, word.ID, "remote-tie", "v-tie", stored.UpdatedAt)
	result := pull(tied)
	assert.Equal(t, 0, result.ItemsUpdated)

	after, err := wordRepo.GetByID(ctx, word.ID)
	require.NoError(t, err)
	assert.Equal(t, "tie", after.Term, "a timestamp tie keeps the local row")

	newer := wordRecord(t, word.ID, "remote-new", "v-new", stored.UpdatedAt.Add(time.Hour))
	result = pull(newer)
	assert.Equal(t, 1, result.ItemsUpdated)

	after, err = wordRepo.GetByID(ctx, word.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote-new", after.Term)
	assert.Equal(t, "v-new", after.RowVersion)
}

func TestPullTombstoneRespectsQueuedLocalChange(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	guarded := createWord(t, "keep")
	doomed := createWord(t, "drop")
	future := time.Now().UTC().Add(time.Hour)

	remote := &fakeRemote{
		fetchFunc: func(ctx context.Context, userID int64, table string, since time.Time) ([]RemoteRecord, error) {
			return []RemoteRecord{
				{RecordID: guarded.ID, Deleted: true, RowVersion: "v-del", UpdatedAt: future},
				{RecordID: doomed.ID, Deleted: true, RowVersion: "v-del", UpdatedAt: future},
			}, nil
		},
	}
	r := newTestReconciler(remote, 10)
	queueWordChange(t, r, models.OpUpdate, guarded)

	result, err := r.RunSync(ctx, "words", models.DirectionPull)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsDeleted)

	wordRepo := database.NewWordRepository()
	kept, err := wordRepo.GetByID(ctx, guarded.ID)
	require.NoError(t, err)
	assert.False(t, kept.Deleted, "a queued local change outranks the remote tombstone")

	dropped, err := wordRepo.GetByID(ctx, doomed.ID)
	require.NoError(t, err)
	assert.True(t, dropped.Deleted)
}

func TestCancelSyncStopsBetweenBatches(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	var r *Reconciler
	remote := &fakeRemote{
		pushFunc: func(ctx context.Context, userID int64, table string, items []PushItem) ([]PushReceipt, error) {
			r.CancelSync()
			return acceptAll(items), nil
		},
	}
	r = newTestReconciler(remote, 1)
	for _, term := range []string{"first", "second", "third"} {
		queueWordChange(t, r, models.OpCreate, createWord(t, term))
	}

	result, err := r.RunSync(ctx, "words", models.DirectionPush)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ItemsProcessed, "cancellation takes effect at the next batch boundary")
	assert.Equal(t, models.SyncCancelled, r.GetSyncInfo().Status)

	remaining, err := database.NewPendingChangeRepository().GetForTable(ctx, 1, "words")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

// cancelAfterApplyTable requests cancellation once the first pulled
// record has been applied.
type cancelAfterApplyTable struct {
	inner  LocalTable
	cancel func()
	once   stdsync.Once
}

func (c *cancelAfterApplyTable) Name() string { return c.inner.Name() }

func (c *cancelAfterApplyTable) Apply(ctx context.Context, userID int64, rec RemoteRecord) (applyOutcome, error) {
	outcome, err := c.inner.Apply(ctx, userID, rec)
	c.once.Do(c.cancel)
	return outcome, err
}

func TestCancelledPullKeepsAppliedBatchesAndCheckpoint(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	updatedAt := time.Now().UTC().Add(-time.Hour)
	remote := &fakeRemote{
		fetchFunc: func(ctx context.Context, userID int64, table string, since time.Time) ([]RemoteRecord, error) {
			return []RemoteRecord{
				wordRecord(t, 201, "applied", "v-srv-1", updatedAt),
				wordRecord(t, 202, "unapplied", "v-srv-2", updatedAt.Add(time.Minute)),
			}, nil
		},
	}

	var r *Reconciler
	table := &cancelAfterApplyTable{
		inner:  NewWordTable(),
		cancel: func() { r.CancelSync() },
	}
	opts := config.SyncOptions{
		MaxBatchSize: 1,
		Direction:    models.DirectionPull,
		SyncTables:   []string{"words"},
	}
	r = NewReconciler(1, opts, remote, table)

	result, err := r.RunSync(ctx, "words", models.DirectionPull)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ItemsProcessed, "cancellation takes effect at the next batch boundary")
	assert.Equal(t, 1, result.ItemsCreated)
	assert.Equal(t, models.SyncCancelled, r.GetSyncInfo().Status)

	wordRepo := database.NewWordRepository()
	applied, err := wordRepo.GetByID(ctx, 201)
	require.NoError(t, err)
	require.NotNil(t, applied, "the batch applied before cancellation stays")

	unapplied, err := wordRepo.GetByID(ctx, 202)
	require.NoError(t, err)
	assert.Nil(t, unapplied)

	checkpoint, err := database.NewCheckpointRepository().Get(ctx, 1, "words")
	require.NoError(t, err)
	assert.Nil(t, checkpoint, "a cancelled pull never touches the checkpoint")
}

func TestSyncAllCoversConfiguredTables(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	r := newTestReconciler(&fakeRemote{}, 10)
	word := createWord(t, "omega")
	queueWordChange(t, r, models.OpCreate, word)

	progress := &models.LearningProgress{UserID: 1, WordID: word.ID, MemoryStrength: 10, RowVersion: "v1"}
	require.NoError(t, r.QueueChange(ctx, "learning_progress", models.OpCreate, &word.ID, progress, progress.RowVersion))

	total, err := r.SyncAll(ctx)
	require.NoError(t, err)

	assert.True(t, total.Success)
	assert.Equal(t, "all", total.TableName)
	assert.Equal(t, 2, total.ItemsProcessed)

	info := r.GetSyncInfo()
	assert.Contains(t, info.TableResults, "words")
	assert.Contains(t, info.TableResults, "learning_progress")
	assert.Equal(t, models.SyncCompleted, info.Status)

	entries := r.GetSyncLog(10)
	require.NotEmpty(t, entries)
	assert.Equal(t, "sync all", entries[0].Operation)
}

func TestQueueChangeRejectsUnknownTable(t *testing.T) {
	setupTestDB(t)
	r := newTestReconciler(&fakeRemote{}, 10)

	err := r.QueueChange(context.Background(), "topics", models.OpCreate, nil, nil, "")
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func wordRecord(t *testing.T, id int64, term, rowVersion string, updatedAt time.Time) RemoteRecord {
	payload, err := json.Marshal(models.Word{
		ID:          id,
		Term:        term,
		Translation: term + "-tr",
		Category:    "test",
		Level:       1,
		RowVersion:  rowVersion,
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
	})
	require.NoError(t, err)
	return RemoteRecord{
		RecordID:   id,
		Payload:    payload,
		RowVersion: rowVersion,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
}
