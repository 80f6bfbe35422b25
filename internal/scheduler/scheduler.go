// Package scheduler runs automatic reconciliation on a timer.
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/example/lexisync/internal/config"
	syncer "github.com/example/lexisync/internal/sync"
	"github.com/example/lexisync/pkg/models"
	"github.com/go-co-op/gocron"
)

// Syncer is the reconciler surface the scheduler drives
type Syncer interface {
	SyncAll(ctx context.Context) (models.SyncResult, error)
	GetSyncInfo() models.SyncInfo
	SetNextScheduledSync(t time.Time)
}

// Scheduler manages the background auto-sync task
type Scheduler struct {
	scheduler *gocron.Scheduler
	syncer    Syncer
	opts      config.SyncOptions
}

// New creates a new scheduler instance
func New(s Syncer, opts config.SyncOptions) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		syncer:    s,
		opts:      opts,
	}
}

// Start schedules automatic syncs and runs the scheduler in the
// background. Disabled or zero-interval configurations are a no-op.
func (s *Scheduler) Start() {
	if !s.opts.EnableBackgroundSync || s.opts.AutoSyncInterval <= 0 {
		log.Println("Background sync disabled")
		return
	}

	if _, err := s.scheduler.Every(s.opts.AutoSyncInterval).Do(s.runAutoSync); err != nil {
		log.Printf("Error scheduling auto sync: %v", err)
		return
	}

	s.scheduler.StartAsync()
	s.syncer.SetNextScheduledSync(time.Now().UTC().Add(s.opts.AutoSyncInterval))
	log.Printf("Background sync scheduled every %v", s.opts.AutoSyncInterval)
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// runAutoSync performs one automatic reconciliation, retrying the whole
// run on failure. A run already in flight is skipped, not queued.
func (s *Scheduler) runAutoSync() {
	defer s.syncer.SetNextScheduledSync(time.Now().UTC().Add(s.opts.AutoSyncInterval))

	if s.syncer.GetSyncInfo().IsSyncing {
		log.Println("Skipping auto sync, a run is already in progress")
		return
	}

	attempts := s.opts.RetryCount + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := s.syncer.SyncAll(context.Background())
		if err != nil {
			if errors.Is(err, syncer.ErrSyncInProgress) {
				log.Println("Skipping auto sync, a run is already in progress")
				return
			}
			log.Printf("Auto sync attempt %d/%d failed: %v", attempt, attempts, err)
		} else if result.Success {
			log.Printf("Auto sync completed: %d items processed, %d errors", result.ItemsProcessed, result.Errors)
			return
		} else {
			log.Printf("Auto sync attempt %d/%d failed: %s", attempt, attempts, result.Message)
		}

		if attempt < attempts {
			time.Sleep(s.opts.RetryDelay * time.Duration(attempt))
		}
	}

	log.Printf("Auto sync gave up after %d attempts", attempts)
}
