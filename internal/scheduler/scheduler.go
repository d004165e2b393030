package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps robfig/cron and manages the periodic run loop.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	spec   string // cron spec, e.g. "@every 6h"
}

// New creates a Scheduler that fires every intervalHours hours.
func New(runner *Runner, intervalHours int) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cron.DefaultLogger)),
		runner: runner,
		spec:   fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the job and starts the scheduler. Also runs one
// ingestion immediately so the store is populated without waiting for
// the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started, spec: %s", s.spec)

	// Run immediately on startup (non-blocking)
	go s.runOnce(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	run, err := s.runner.Run(ctx)
	if err != nil {
		log.Printf("[scheduler] Run failed: %v", err)
		return
	}
	log.Printf("[scheduler] Run %s finished with status %s", run.ID, run.OverallStatus)
}
