package service

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a periodic task. It gets a context bounded by the job timeout.
type Job func(ctx context.Context) error

// SchedulerService runs periodic maintenance jobs on a cron clock.
type SchedulerService struct {
	cron    *cron.Cron
	timeout time.Duration
	log     zerolog.Logger
}

// NewSchedulerService creates a scheduler whose jobs each run under timeout.
func NewSchedulerService(timeout time.Duration, log zerolog.Logger) *SchedulerService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SchedulerService{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		log:     log,
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

// Every registers job to run once per interval. Intervals are rounded down to
// whole seconds, with a one second floor.
func (s *SchedulerService) Every(name string, interval time.Duration, job Job) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, errors.New("interval must be positive")
	}
	if interval < time.Second {
		interval = time.Second
	}
	schedule := cron.Every(interval.Truncate(time.Second))
	return s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(name, job) })), nil
}

func (s *SchedulerService) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log := s.log.With().Str("job", name).Logger()
	started := time.Now()
	if err := job(log.WithContext(ctx)); err != nil {
		log.Error().Err(err).Dur("took", time.Since(started)).Msg("scheduled job failed")
		return
	}
	log.Debug().Dur("took", time.Since(started)).Msg("scheduled job done")
}
