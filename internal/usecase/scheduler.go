package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fonix232/caddy/internal/ports"
)

// Scheduler wires the interval driver with the pipeline for daemon
// mode. Overlapping triggers are skipped, not queued: two concurrent
// runs could both observe "not yet built" and dispatch twice.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
	inFlight atomic.Bool
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, log *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: log}
}

// Start registers the pipeline with the provided scheduler driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if !s.inFlight.CompareAndSwap(false, true) {
			if s.logger != nil {
				s.logger.Warn("previous run still in flight, skipping trigger", "trigger", trigger)
			}
			return
		}
		defer s.inFlight.Store(false)

		if _, err := s.pipeline.Run(ctx); err != nil && s.logger != nil {
			s.logger.Error("scheduled run failed", "error", err)
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
