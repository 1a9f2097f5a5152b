package cloudsync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	applog "pocketledger/internal/log"
)

const scheduledSyncTimeout = 2 * time.Minute

// Scheduler runs SyncToCloud on a cron spec ("0 3 * * *", "@every 6h", ...).
type Scheduler struct {
	cron   *cron.Cron
	syncer *Syncer
	spec   string
	entry  cron.EntryID
}

func NewScheduler(syncer *Syncer, spec string) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), syncer: syncer, spec: spec}
	id, err := s.cron.AddFunc(spec, s.run)
	if err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.syncer.logger.Info("Sync scheduler started", "schedule", s.spec)
}

// Stop prevents new runs and waits for a running sync to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next is the time of the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), scheduledSyncTimeout)
	defer cancel()
	if _, err := s.syncer.SyncToCloud(ctx); err != nil {
		s.syncer.logger.ErrorContext(ctx, "Scheduled sync failed", applog.FieldError, err)
	}
}
