package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Runner starts and stops a set of jobs.
type Runner interface {
	Start() error
	Stop()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Local runs jobs in-process on a cron clock. A job still running when its
// next tick fires is skipped for that tick.
type Local struct {
	cron    *cron.Cron
	log     zerolog.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewLocal(jobs []Job, loc *time.Location, log zerolog.Logger) (*Local, error) {
	if loc == nil {
		loc = time.Local
	}
	log = log.With().Str("component", "Scheduler").Logger()
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())

	l := &Local{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:     log,
		timeout: 10 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, job := range jobs {
		if _, err := l.cron.AddFunc(job.Spec, l.wrap(job)); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
	}
	return l, nil
}

func (l *Local) wrap(job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
		defer cancel()
		runJob(ctx, l.log, job)
	}
}

func runJob(ctx context.Context, log zerolog.Logger, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("Job failed")
		return err
	}
	log.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("Job finished")
	return nil
}

func (l *Local) Start() error {
	l.cron.Start()
	l.log.Info().Int("jobs", len(l.cron.Entries())).Msg("Scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (l *Local) Stop() {
	l.cancel()
	<-l.cron.Stop().Done()
	l.log.Info().Msg("Scheduler stopped")
}
