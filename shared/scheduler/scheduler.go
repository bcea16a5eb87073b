package scheduler

import (
	"context"
	"fmt"
	"time"

	"backstage/shared/config"
	"backstage/shared/monitoring"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a maintenance task run on a schedule.
type Job interface {
	Name() string
	// RunOnce performs one pass and returns a human-readable summary.
	RunOnce(ctx context.Context) (string, error)
}

// Scheduler runs a Job on a cron schedule and reports each run to the monitor.
type Scheduler struct {
	schedule string
	job      Job
	monitor  *monitoring.Monitor
	log      logrus.FieldLogger
	cron     *cron.Cron
}

// New builds a scheduler. An empty schedule means the job only runs through
// RunOnce.
func New(schedule string, job Job, monitor *monitoring.Monitor, log logrus.FieldLogger) *Scheduler {
	cronLog := cron.PrintfLogger(log)
	return &Scheduler{
		schedule: schedule,
		job:      job,
		monitor:  monitor,
		log:      log.WithField("job", job.Name()),
		// Prevent overlapping runs
		cron: cron.New(cron.WithParser(config.CronParser), cron.WithChain(cron.SkipIfStillRunning(cronLog))),
	}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.schedule == "" {
		s.log.Info("No schedule configured, periodic runs disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.WithError(err).Error("Scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.log.WithField("schedule", s.schedule).Info("Scheduler started")
	s.cron.Start()

	<-ctx.Done()
	s.log.Info("Scheduler stopped")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	name := s.job.Name()

	s.log.Debug("Starting run")

	summary, err := s.job.RunOnce(ctx)
	duration := time.Since(start)
	if err != nil {
		s.monitor.RecordFailure(name, err, duration)
		return fmt.Errorf("%s run failed: %w", name, err)
	}

	s.monitor.RecordSuccess(name, summary, duration)
	return nil
}
