// Package scheduler runs recurring background jobs on cron schedules.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/quantlab/riskcore/pkg/logger"
)

// jobTimeout bounds one run of any scheduled job.
const jobTimeout = 15 * time.Minute

// Scheduler wraps a cron runner with logging and per-job timeouts.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  logger.Component(log, "scheduler"),
	}
}

// AddJob registers a job under a standard 5-field cron spec.
func (s *Scheduler) AddJob(spec, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
			return
		}
		s.log.Info().
			Str("job", name).
			Dur("elapsed", time.Since(started)).
			Msg("Scheduled job complete")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("job", name).Str("schedule", spec).Msg("Registered job")
	return nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
