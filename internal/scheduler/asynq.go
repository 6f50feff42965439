package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	taskPrefix = "santa:"
	queueName  = "santa"
)

// Asynq runs jobs as Redis-backed periodic tasks. Any number of processes
// may run it; each tick is enqueued once and handled by one worker.
type Asynq struct {
	scheduler *asynq.Scheduler
	server    *asynq.Server
	mux       *asynq.ServeMux
	log       zerolog.Logger
}

func TaskType(jobName string) string {
	return taskPrefix + jobName
}

func NewAsynq(jobs []Job, redisOpt asynq.RedisConnOpt, loc *time.Location, log zerolog.Logger) (*Asynq, error) {
	if loc == nil {
		loc = time.Local
	}
	log = log.With().Str("component", "Scheduler").Logger()

	a := &Asynq{
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			Location: loc,
			LogLevel: asynq.WarnLevel,
		}),
		server: asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: 2,
			Queues:      map[string]int{queueName: 1},
			LogLevel:    asynq.WarnLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("task", task.Type()).Msg("Task failed")
			}),
		}),
		mux: newMux(jobs, log),
		log: log,
	}

	for _, job := range jobs {
		task := asynq.NewTask(TaskType(job.Name), nil)
		// A tick that is still waiting when the next one comes is dropped.
		if _, err := a.scheduler.Register(job.Spec, task,
			asynq.Queue(queueName), asynq.MaxRetry(0), asynq.Unique(55*time.Second)); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
	}
	return a, nil
}

func newMux(jobs []Job, log zerolog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for _, job := range jobs {
		job := job
		mux.HandleFunc(TaskType(job.Name), func(ctx context.Context, _ *asynq.Task) error {
			return runJob(ctx, log, job)
		})
	}
	return mux
}

func (a *Asynq) Start() error {
	if err := a.server.Start(a.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	if err := a.scheduler.Start(); err != nil {
		a.server.Shutdown()
		return fmt.Errorf("failed to start asynq scheduler: %w", err)
	}
	a.log.Info().Msg("Scheduler started")
	return nil
}

func (a *Asynq) Stop() {
	a.scheduler.Shutdown()
	a.server.Shutdown()
	a.log.Info().Msg("Scheduler stopped")
}
