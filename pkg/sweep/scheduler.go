package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs sweeps on a cron schedule.
type Scheduler struct {
	sweeper  *Sweeper
	schedule string
	request  Request
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewScheduler creates a scheduler for a standard five-field cron
// expression, e.g. "0 2 * * *" for every day at 2 AM.
func NewScheduler(sweeper *Sweeper, schedule string, req Request, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sweeper:  sweeper,
		schedule: schedule,
		request:  req,
		cron:     cron.New(),
		logger:   logger.With("component", "sweep.scheduler"),
	}
}

// Start registers the job and starts the cron loop. The scheduler stops
// when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runSweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("sweep scheduler started", "schedule", s.schedule, "tier_id", s.request.TierID)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) runSweep(ctx context.Context) {
	s.logger.Info("starting scheduled sweep")
	if _, err := s.sweeper.Run(ctx, s.request); err != nil && !errors.Is(err, ErrDebounced) {
		s.logger.Error("scheduled sweep failed", "error", err)
	}
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("sweep scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is started.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled sweep, or nil before Start.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
