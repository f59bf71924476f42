package usecase

import (
	"context"
	"time"

	"FilingMonitor/internal/ports"
)

// Scheduler wires a recurring driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	onResult func(PipelineResult, error)
}

// NewScheduler returns a helper to start/stop recurring runs. onResult may be nil.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, onResult func(PipelineResult, error)) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, onResult: onResult}
}

// Start registers the pipeline with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(time.Time) {
		res, err := s.pipeline.RunOnce(ctx)
		if s.onResult != nil {
			s.onResult(res, err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
