package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Runner is one cleanup pass. *Policy satisfies it.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler fires a Runner on a cron schedule. A failed or panicking run is
// logged and the next scheduled run still happens.
type Scheduler struct {
	runner   Runner
	schedule cronlib.Schedule
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	runs   int
	fails  int
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler parses spec (standard 5-field cron or a descriptor such as
// "@every 1h" or "@daily") and returns a stopped scheduler.
func NewScheduler(r Runner, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultConfig().Schedule
	}
	sched, err := cronlib.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", spec, err)
	}
	return NewSchedulerWith(r, sched, logger), nil
}

// NewSchedulerWith uses an already built schedule.
func NewSchedulerWith(r Runner, sched cronlib.Schedule, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: r, schedule: sched, logger: logger, now: time.Now}
}

// Start begins the scheduling loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("retention scheduler started", "next_run", s.schedule.Next(s.now()))
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("retention scheduler stopped")
}

// Stats returns the number of runs attempted and how many failed.
func (s *Scheduler) Stats() (runs, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.fails
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := s.now()
		next := s.schedule.Next(now)
		if next.IsZero() {
			s.logger.Warn("retention schedule has no future runs")
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		s.mu.Lock()
		s.runs++
		if err != nil {
			s.fails++
		}
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("retention run failed", "error", err)
		}
	}()

	_, err = s.runner.Run(ctx)
}
