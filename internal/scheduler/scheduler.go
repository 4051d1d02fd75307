// Package scheduler wires up the cron job that prunes aged price-history
// rows, keeping the append-only time series bounded.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/driveline/market-research-go/internal/database"
	"github.com/driveline/market-research-go/internal/logging"
)

// Scheduler wraps robfig/cron and manages the retention loop.
type Scheduler struct {
	cron          *cron.Cron
	repo          *database.ResearchRepository
	retentionDays int
	spec          string
	log           *logrus.Entry
}

// New creates a Scheduler that prunes price history on the given cron spec
// (e.g. "@daily"), keeping retentionDays of data.
func New(repo *database.ResearchRepository, retentionDays int, spec string) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		repo:          repo,
		retentionDays: retentionDays,
		spec:          spec,
		log:           logging.ForComponent("retention_scheduler"),
	}
}

// Start registers the retention job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.prune(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.WithField("spec", s.spec).Info("Retention scheduler started")
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("Retention scheduler stopped")
}

func (s *Scheduler) prune(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	removed, err := s.repo.DeleteHistoryBefore(ctx, cutoff)
	if err != nil {
		s.log.WithError(err).Error("Price history pruning failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"removed": removed,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("Pruned price history")
}
