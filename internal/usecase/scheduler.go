package usecase

import (
	"context"
	"log/slog"
	"time"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/ports"
)

// ScheduledRun is a named cron entry and the request it triggers.
type ScheduledRun struct {
	Name    string
	Spec    string
	Request domain.RunRequest
}

// Scheduler wires the cron driver with the acquisition trigger.
type Scheduler struct {
	driver  ports.Scheduler
	trigger ports.Trigger
	runs    []ScheduledRun
	logger  *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, trigger ports.Trigger, runs []ScheduledRun, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{driver: driver, trigger: trigger, runs: runs, logger: logger}
}

// Jobs converts the scheduled runs into driver jobs.
func (s *Scheduler) Jobs() []ports.Job {
	jobs := make([]ports.Job, 0, len(s.runs))
	for _, r := range s.runs {
		r := r
		jobs = append(jobs, ports.Job{
			Name: r.Name,
			Spec: r.Spec,
			Run: func(ctx context.Context, at time.Time) {
				report, err := s.trigger.Run(ctx, r.Request)
				if err != nil {
					s.logger.Error("scheduled run failed", "job", r.Name, "at", at, "error", err)
					return
				}
				s.logger.Info("scheduled run finished",
					"job", r.Name,
					"run_id", report.RunID,
					"new", report.Total.New,
					"duplicate", report.Total.Duplicate,
					"failures", len(report.Failures),
				)
			},
		})
	}
	return jobs
}

// Start registers every run with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.trigger == nil {
		return nil
	}
	return s.driver.Start(ctx, s.Jobs())
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
