// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

type SchedulerOptions struct {
	Location         *time.Location
	OnThisDayHour    uint
	OnThisDayMinute  uint
	SweepInterval    time.Duration
	SweepConcurrency int
}

// StartScheduler runs the daily on-this-day posts and the periodic badge sweep.
func StartScheduler(ctx context.Context, opts SchedulerOptions, badges *BadgeService, users *UserService, onThisDay *OnThisDayService, log *zap.Logger) (gocron.Scheduler, error) {
	log = log.Named("scheduler")
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	// Every day at the configured time: on-this-day posts
	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(opts.OnThisDayHour, opts.OnThisDayMinute, 0))),
		gocron.NewTask(func() {
			posted, err := onThisDay.Run(ctx, time.Now().In(loc))
			if err != nil {
				log.Error("on-this-day run failed", zap.Error(err))
				return
			}
			log.Info("✅ on-this-day posts published", zap.Int("posted", posted))
		}),
		gocron.WithName("on-this-day"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule on-this-day: %w", err)
	}

	if opts.SweepInterval > 0 {
		// Catches badges that depend on the calendar (monthly counts, streaks) without a mutation.
		_, err = sched.NewJob(
			gocron.DurationJob(opts.SweepInterval),
			gocron.NewTask(func() {
				ids, err := users.ListUserIDs(ctx)
				if err != nil {
					log.Error("badge sweep: list users failed", zap.Error(err))
					return
				}
				awarded, err := badges.Sweep(ctx, ids, opts.SweepConcurrency)
				if err != nil {
					log.Error("badge sweep interrupted", zap.Error(err))
				}
				log.Info("badge sweep done", zap.Int("users", len(ids)), zap.Int("awarded", awarded))
			}),
			gocron.WithName("badge-sweep"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule badge sweep: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}
