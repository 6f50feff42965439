package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"secret-santa/internal/notify"
	"secret-santa/internal/queue"
)

const (
	JobSMSQueue          = "sms-queue"
	JobQueueCleanup      = "queue-cleanup"
	JobWishlistReminders = "wishlist-reminders"
	JobShoppingReminders = "shopping-reminders"
	JobExchangeDay       = "exchange-day"
)

// Job is a named task run on a cron schedule.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type QueueRunner interface {
	ProcessQueue(ctx context.Context, maxBatch int) (*queue.Result, error)
	Cleanup(ctx context.Context, days int) (int64, error)
}

type Reminders interface {
	NotifyWishListReminders(ctx context.Context) (*notify.BulkResult, error)
	NotifyShoppingReminder(ctx context.Context, daysRemaining int) (*notify.BulkResult, error)
	NotifyExchangeDay(ctx context.Context) (*notify.BulkResult, error)
}

type JobConfig struct {
	BatchSize     int
	RetentionDays int
	// ExchangeDate zero disables the date-driven reminders.
	ExchangeDate time.Time
	Location     *time.Location
	Now          func() time.Time
}

// shoppingReminderDays are the days before the exchange that get a reminder.
var shoppingReminderDays = map[int]bool{7: true, 3: true, 1: true}

// DaysUntil counts calendar days from now to date in loc. It is negative once
// the date has passed.
func DaysUntil(date, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.Local
	}
	y1, m1, d1 := now.In(loc).Date()
	y2, m2, d2 := date.In(loc).Date()
	from := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	to := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// Jobs returns the standard job set.
func Jobs(q QueueRunner, r Reminders, cfg JobConfig, log zerolog.Logger) []Job {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log = log.With().Str("component", "Jobs").Logger()

	logBulk := func(job string, res *notify.BulkResult) {
		log.Info().Str("job", job).Int("queued", res.Queued).Int("eligible", res.Total).Msg("Reminders queued")
	}

	return []Job{
		{
			Name: JobSMSQueue,
			Spec: "* * * * *",
			Run: func(ctx context.Context) error {
				res, err := q.ProcessQueue(ctx, cfg.BatchSize)
				if err != nil {
					return err
				}
				if res.Attempted > 0 {
					log.Info().Int("attempted", res.Attempted).Int("succeeded", res.Succeeded).
						Int("failed", res.Failed).Msg("SMS queue processed")
				}
				return nil
			},
		},
		{
			Name: JobQueueCleanup,
			Spec: "0 3 * * *",
			Run: func(ctx context.Context) error {
				_, err := q.Cleanup(ctx, cfg.RetentionDays)
				return err
			},
		},
		{
			Name: JobWishlistReminders,
			Spec: "0 10 * * *",
			Run: func(ctx context.Context) error {
				res, err := r.NotifyWishListReminders(ctx)
				if err != nil {
					return err
				}
				logBulk(JobWishlistReminders, res)
				return nil
			},
		},
		{
			Name: JobShoppingReminders,
			Spec: "0 10 * * *",
			Run: func(ctx context.Context) error {
				if cfg.ExchangeDate.IsZero() {
					log.Debug().Str("job", JobShoppingReminders).Msg("EXCHANGE_DATE not configured")
					return nil
				}
				days := DaysUntil(cfg.ExchangeDate, cfg.Now(), cfg.Location)
				if !shoppingReminderDays[days] {
					return nil
				}
				res, err := r.NotifyShoppingReminder(ctx, days)
				if err != nil {
					return err
				}
				logBulk(JobShoppingReminders, res)
				return nil
			},
		},
		{
			Name: JobExchangeDay,
			Spec: "0 9 * * *",
			Run: func(ctx context.Context) error {
				if cfg.ExchangeDate.IsZero() {
					log.Debug().Str("job", JobExchangeDay).Msg("EXCHANGE_DATE not configured")
					return nil
				}
				if DaysUntil(cfg.ExchangeDate, cfg.Now(), cfg.Location) != 0 {
					return nil
				}
				res, err := r.NotifyExchangeDay(ctx)
				if err != nil {
					return err
				}
				logBulk(JobExchangeDay, res)
				return nil
			},
		},
	}
}
