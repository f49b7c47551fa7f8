// Package scheduler runs VantaLoop's periodic jobs, such as the weekly digest,
// on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultDigestSchedule fires every Monday at 09:00.
const DefaultDigestSchedule = "0 9 * * 1"

// standard 5-field parser (min, hour, dom, month, dow)
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Job is a scheduled task. The context is canceled when the scheduler stops.
type Job func(ctx context.Context) error

// Option configures a Scheduler.
type Option func(*opts)

type opts struct {
	location *time.Location
}

// WithLocation evaluates cron expressions in loc instead of UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *opts) { o.location = loc }
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs do not run until Start is called.
func NewScheduler(options ...Option) *Scheduler {
	o := opts{location: time.UTC}
	for _, opt := range options {
		opt(&o)
	}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(o.location),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel}
}

// ValidateExpr reports whether expr is a valid schedule.
func ValidateExpr(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("scheduler: invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// AddJob schedules job under name using the provided cron expression.
func (s *Scheduler) AddJob(expr, name string, job Job) error {
	if err := ValidateExpr(expr); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		slog.Info("Scheduler: job started", "job", name)
		if err := job(s.ctx); err != nil {
			slog.Error("Scheduler: job failed", "job", name, "error", err, "elapsed", time.Since(start))
			return
		}
		slog.Info("Scheduler: job finished", "job", name, "elapsed", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("scheduler: add job %s: %w", name, err)
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "job", name, "expr", expr)
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("Scheduler.Stop: timed out waiting for running jobs")
	}
}
