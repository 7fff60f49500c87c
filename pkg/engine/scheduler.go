package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a named unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives a set of tasks, each on its own fixed interval.
// Every task runs on a dedicated goroutine and processes ticks
// sequentially, so a slow cycle can never overlap the next one: ticks
// that arrive mid-cycle are dropped, not queued.
type Scheduler struct {
	tasks  []Task
	logger zerolog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger.With().Str("component", "scheduler").Logger(),
		stopCh: make(chan struct{}),
	}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(task Task) {
	s.tasks = append(s.tasks, task)
}

// Start launches all registered tasks.
func (s *Scheduler) Start(ctx context.Context) {
	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.run(ctx, task)
	}
	s.logger.Info().Int("tasks", len(s.tasks)).Msg("scheduler started")
}

// Stop signals all tasks to finish and waits for them, bounded by the
// context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for scheduler to stop: %w", ctx.Err())
	}
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := task.Run(ctx); err != nil {
				s.logger.Error().Err(err).Str("task", task.Name).Msg("task cycle failed")
				// Keep running; the next tick retries from current state.
			}
		}
	}
}
