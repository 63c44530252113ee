package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"EditaisScanner/internal/ports"
)

// CronScheduler runs jobs on standard five-field cron specs.
type CronScheduler struct {
	location *time.Location
	logger   *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating specs in loc.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CronScheduler{location: loc, logger: logger}
}

// ParseSpec validates a five-field cron expression.
func ParseSpec(spec string) (cron.Schedule, error) {
	return parser().Parse(spec)
}

func parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Start registers every job and begins ticking. Overlapping runs of one job are skipped.
func (c *CronScheduler) Start(ctx context.Context, jobs []ports.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cron != nil {
		return nil
	}

	log := cronLogger{c.logger}
	cr := cron.New(
		cron.WithLocation(c.location),
		cron.WithParser(parser()),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		cron.WithLogger(log),
	)

	jobCtx, cancel := context.WithCancel(ctx)
	for _, job := range jobs {
		if job.Run == nil {
			continue
		}
		job := job
		if _, err := cr.AddFunc(job.Spec, func() {
			at := time.Now().In(c.location)
			c.logger.Info("scheduled job fired", "job", job.Name, "at", at)
			job.Run(jobCtx, at)
		}); err != nil {
			cancel()
			return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
		}
		c.logger.Info("job scheduled", "job", job.Name, "spec", job.Spec)
	}

	cr.Start()
	c.cron = cr
	c.cancel = cancel
	return nil
}

// Stop halts scheduling and waits for running jobs or ctx, whichever ends first.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	cr, cancel := c.cron, c.cancel
	c.cron, c.cancel = nil, nil
	c.mu.Unlock()

	if cr == nil {
		return nil
	}

	done := cr.Stop()
	select {
	case <-done.Done():
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Entries reports the next activation of every registered job.
func (c *CronScheduler) Entries() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return nil
	}
	var next []time.Time
	for _, e := range c.cron.Entries() {
		next = append(next, e.Next)
	}
	return next
}

type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
