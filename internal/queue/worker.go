package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/dmitrymomot/mailblocks/internal/scheduler"
	"github.com/dmitrymomot/mailblocks/internal/store"
)

// deliveryArgs is the River job payload for one scheduled delivery.
type deliveryArgs struct {
	Input scheduler.Input `json:"input"`
}

func (deliveryArgs) Kind() string {
	return "delivery:send"
}

// deliveryWorker fires the delivery activity when a parked job reaches its
// target time.
type deliveryWorker struct {
	river.WorkerDefaults[deliveryArgs]
	deliverer scheduler.Deliverer
	logger    *slog.Logger
}

func (w *deliveryWorker) Work(ctx context.Context, job *river.Job[deliveryArgs]) error {
	in := job.Args.Input

	w.logger.DebugContext(ctx, "firing scheduled delivery",
		slog.String("schedule_id", in.ScheduleID),
		slog.Int64("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
	)

	if err := w.deliverer.Deliver(ctx, in); err != nil {
		w.logger.ErrorContext(ctx, "scheduled delivery failed",
			slog.String("schedule_id", in.ScheduleID),
			slog.Int64("job_id", job.ID),
			slog.Int("attempt", job.Attempt),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

// sweepArgs is the payload of the periodic stale-schedule sweep.
type sweepArgs struct{}

func (sweepArgs) Kind() string {
	return "delivery:sweep"
}

// sweepWorker flags records still marked scheduled well past their target
// time: either a firing failed permanently or a job went missing. There is
// no automatic repair, only a loud log line for operators.
type sweepWorker struct {
	river.WorkerDefaults[sweepArgs]
	store  store.Store
	grace  time.Duration
	logger *slog.Logger
}

func (w *sweepWorker) Work(ctx context.Context, _ *river.Job[sweepArgs]) error {
	records, err := w.store.List(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-w.grace)
	for _, rec := range records {
		if rec.Status == store.StatusScheduled && rec.TargetTime.Before(cutoff) {
			w.logger.WarnContext(ctx, "schedule past target time and still not sent",
				slog.String("schedule_id", rec.ScheduleID),
				slog.Time("target_time", rec.TargetTime),
				slog.String("handle", rec.Handle),
			)
		}
	}
	return nil
}
