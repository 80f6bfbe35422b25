package sync

import "errors"

// Every failure inside a reconciliation run maps to exactly one of
// these kinds. Item-level kinds (validation, ownership, conflict) are
// recovered locally and never abort the run; transport failures fail
// the batch they hit; cancellation ends the run at the next batch
// boundary.
var (
	// ErrValidation marks a malformed or unresolvable item
	ErrValidation = errors.New("validation error")
	// ErrOwnership marks a record owned by a different user
	ErrOwnership = errors.New("forbidden")
	// ErrConflict marks a concurrency token mismatch
	ErrConflict = errors.New("conflict")
	// ErrTransport marks an unreachable or failing remote
	ErrTransport = errors.New("transport error")
	// ErrSyncInProgress rejects a second concurrent run
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrUnknownTable rejects a table not configured for sync
	ErrUnknownTable = errors.New("table not configured for synchronization")
)
