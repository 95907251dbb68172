package scheduler

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Triggerer starts a sync run without waiting for it.
type Triggerer interface {
	Trigger() bool
}

// Scheduler periodically triggers a sync of the consumption store.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Triggerer
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. A non-positive interval disables it.
func New(target Triggerer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	// a job never runs concurrently with itself
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		target:    target,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run fires one interval after start; main triggers the startup sync.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("scheduler: sync interval disabled; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		running := s.target.Trigger()
		s.logger.Info("scheduler: sync triggered", slog.Bool("running", running))
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler: started", slog.Duration("interval", s.interval))
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// Jobs reports the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}
