package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ericvicenti/botical-sub000/internal/store"
)

// WorkflowRunner is the interface the scheduler uses to start workflow
// executions. Satisfied by the engine (avoids import cycle).
type WorkflowRunner interface {
	Execute(ctx context.Context, workflowID string, input map[string]any) (executionID string, err error)
}

// Scheduler polls the store for due scheduled runs and starts them.
type Scheduler struct {
	store  store.Store
	runner WorkflowRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // run IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner WorkflowRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks all enabled scheduled runs and starts those that are due.
func (s *Scheduler) tick(ctx context.Context) {
	enabled := true
	runs, err := s.store.ListScheduledRuns(ctx, store.ScheduledRunFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list scheduled runs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, run := range runs {
		if run.NextRunAt == nil || !run.NextRunAt.After(now) {
			if !s.tryAcquire(run.ID) {
				continue // already running (dedup)
			}
			if err := s.fire(ctx, run, now); err != nil {
				s.logger.Error("failed to run scheduled workflow",
					slog.String("schedule_id", run.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(run.ID)
		}
	}
}

// fire starts one scheduled workflow execution and updates the schedule's
// timestamps.
func (s *Scheduler) fire(ctx context.Context, run *store.ScheduledRun, now time.Time) error {
	s.logger.Info("running scheduled workflow",
		slog.String("schedule_id", run.ID),
		slog.String("workflow_id", run.WorkflowID),
	)

	var input map[string]any
	if len(run.Input) > 0 {
		if err := json.Unmarshal(run.Input, &input); err != nil {
			return s.updateSchedule(ctx, run, now, "error")
		}
	}

	executionID, err := s.runner.Execute(ctx, run.WorkflowID, input)
	status := "started"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled workflow failed to start",
			slog.String("schedule_id", run.ID),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("scheduled workflow started",
			slog.String("schedule_id", run.ID),
			slog.String("execution_id", executionID),
		)
	}

	return s.updateSchedule(ctx, run, now, status)
}

func (s *Scheduler) updateSchedule(ctx context.Context, run *store.ScheduledRun, now time.Time, status string) error {
	nextRun, err := s.CalculateNextRun(run.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", run.ID, err)
	}

	return s.store.UpdateScheduledRun(ctx, run.ID, store.ScheduledRunUpdate{
		LastRunAt:     &now,
		NextRunAt:     &nextRun,
		LastRunStatus: status,
	})
}

// tryAcquire returns true and marks the schedule as in-flight if it is not
// already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the schedule from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed checks for schedules that missed their next_run_at while
// the process was down and runs them once.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	enabled := true
	runs, err := s.store.ListScheduledRuns(ctx, store.ScheduledRunFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, run := range runs {
		if run.NextRunAt != nil && run.NextRunAt.Before(now) {
			if !s.tryAcquire(run.ID) {
				continue
			}
			if err := s.fire(ctx, run, now); err != nil {
				s.logger.Error("failed to recover missed schedule",
					slog.String("schedule_id", run.ID),
					slog.String("error", err.Error()),
				)
				s.release(run.ID)
				continue
			}
			s.release(run.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}
