package usecase

import (
	"context"
	"log/slog"
	"time"

	"TopicNewsletter/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	plan     func() Plan
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs. plan is called on
// every trigger so each run gets a fresh run ID.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, plan func() Plan, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, plan: plan, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil || s.plan == nil {
		return nil
	}

	job := func(trigger time.Time) {
		res, err := s.pipeline.Process(ctx, s.plan())
		runID := ""
		if res.State != nil {
			runID = res.State.RunID
		}
		switch {
		case err == nil:
			s.logger.Info("scheduled run finished", "trigger", trigger, "run_id", runID)
		case IsSkipped(err):
			s.logger.Warn("scheduled run skipped", "trigger", trigger, "run_id", runID, "reason", err)
		default:
			s.logger.Error("scheduled run failed", "trigger", trigger, "run_id", runID, "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
