// Package scheduler repeats harness runs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// RunFunc performs one complete harness run
type RunFunc func(ctx context.Context) error

// Stats describes what the scheduler has done so far
type Stats struct {
	Runs      int
	Skipped   int
	Failures  int
	LastRun   time.Time
	LastError string
	NextRun   time.Time
}

// Service runs a RunFunc on a cron schedule, never overlapping runs
type Service struct {
	cron   *cron.Cron
	logger arbor.ILogger
	run    RunFunc

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex // Protects everything below
	running      bool
	isProcessing bool
	entryID      cron.EntryID
	stats        Stats
}

// NewService creates a scheduler for run. Schedules take a seconds field.
func NewService(logger arbor.ILogger, run RunFunc) *Service {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger,
		run:    run,
	}
}

// Start begins scheduling with cronExpr
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	id, err := s.cron.AddFunc(cronExpr, s.runScheduledTask)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = id

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Str("next_run", s.cron.Entry(id).Next.Format(time.RFC3339)).
		Msg("Scheduler started")
	return nil
}

// Stop halts scheduling, cancels an in-flight run and waits for it to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cron.Remove(s.entryID)
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.cron.Stop().Done()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning reports whether the scheduler is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns a snapshot of scheduler counters
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	if s.running {
		stats.NextRun = s.cron.Entry(s.entryID).Next
	}
	return stats
}

// runScheduledTask performs one run unless the previous one is still going
func (s *Service) runScheduledTask() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Panic recovered in scheduled run")
			s.finish(fmt.Errorf("panic: %v", r))
		}
	}()

	s.mu.Lock()
	if s.isProcessing {
		s.stats.Skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous run still in progress, skipping this cycle")
		return
	}
	s.isProcessing = true
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	s.logger.Info().Msg("Scheduled run starting")
	s.finish(s.run(ctx))
}

func (s *Service) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isProcessing {
		return
	}
	s.isProcessing = false
	s.stats.Runs++
	s.stats.LastRun = time.Now()
	s.stats.LastError = ""
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
		s.logger.Error().Err(err).Msg("Scheduled run failed")
		return
	}
	s.logger.Info().Msg("Scheduled run completed")
}
