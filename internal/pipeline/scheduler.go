package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Task is a periodic maintenance function.
type Task func(ctx context.Context) error

// Scheduler wraps gocron for housekeeping: evicting old builds, expired
// dedup markers and stale diagram cache entries.
type Scheduler struct {
	scheduler gocron.Scheduler
	log       *slog.Logger
}

func NewScheduler(log *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, log: log}, nil
}

// Every schedules task to run at interval and returns its job ID.
func (s *Scheduler) Every(name string, interval time.Duration, task Task) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.execute, name, task),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", name, err)
	}
	return job.ID().String(), nil
}

func (s *Scheduler) execute(name string, task Task) {
	start := time.Now()
	if err := task(context.Background()); err != nil {
		s.log.Warn("scheduled task failed", "task", name, "error", err)
		return
	}
	s.log.Debug("scheduled task done", "task", name, "duration", time.Since(start))
}

// Jobs returns the number of scheduled tasks.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

func (s *Scheduler) Start() {
	s.log.Info("starting scheduler", "tasks", s.Jobs())
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running tasks.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}
