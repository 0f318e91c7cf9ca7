package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler takes periodic snapshots independent of change events.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler registers w.SnapshotAll on schedule (standard five-field cron or a
// descriptor such as @hourly).
func NewScheduler(schedule string, w *Worker, log *zap.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		log.Info("scheduled snapshot started")
		if err := w.SnapshotAll(ctx); err != nil {
			log.Error("scheduled snapshot failed", zap.Error(err))
			return
		}
		log.Info("scheduled snapshot finished")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("snapshot scheduler started")
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("snapshot scheduler stopped")
}
