// Package delivery implements the unit of work invoked when a scheduled
// delivery fires: compile the stored block tree, transmit it, and mark the
// record sent.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/mailblocks/internal/events"
	"github.com/dmitrymomot/mailblocks/internal/scheduler"
	"github.com/dmitrymomot/mailblocks/internal/store"
	"github.com/dmitrymomot/mailblocks/pkg/compiler"
	"github.com/dmitrymomot/mailblocks/pkg/mailer"
)

// Activity compiles and transmits one scheduled delivery. It is a single
// idempotent attempt: nothing touches the store until the provider has
// accepted the message, so re-invoking after a provider failure is safe.
type Activity struct {
	compiler  *compiler.Compiler
	sender    mailer.Sender
	store     store.Store
	publisher events.Publisher
	log       *slog.Logger
}

// Option configures the activity.
type Option func(*Activity)

// WithPublisher sets the lifecycle event publisher. Defaults to a noop.
func WithPublisher(p events.Publisher) Option {
	return func(a *Activity) {
		if p != nil {
			a.publisher = p
		}
	}
}

// New creates a delivery activity.
func New(comp *compiler.Compiler, sender mailer.Sender, st store.Store, log *slog.Logger, opts ...Option) *Activity {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &Activity{
		compiler:  comp,
		sender:    sender,
		store:     st,
		publisher: events.Noop{},
		log:       log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Deliver implements scheduler.Deliverer. Steps, in order: compile the
// payload, transmit via the provider, then move the record scheduled→sent.
// A provider failure leaves the record untouched and is reported to the
// caller; whether it is retried is the substrate's business, not ours.
func (a *Activity) Deliver(ctx context.Context, in scheduler.Input) error {
	var doc compiler.Document
	if err := json.Unmarshal(in.Payload, &doc); err != nil {
		return fmt.Errorf("delivery: decode payload for %s: %w", in.ScheduleID, err)
	}

	artifact := a.compiler.Compile(doc, in.Subject)

	messageID, err := a.sender.Send(ctx, &mailer.Email{
		To:      []string{in.Recipient},
		Subject: in.Subject,
		HTML:    artifact.HTML,
		Text:    artifact.Text,
	})
	if err != nil {
		return errors.Join(mailer.ErrSendFailed, err)
	}

	_, err = a.store.Transition(ctx, in.ScheduleID, store.StatusScheduled, store.StatusSent, time.Now().UTC())
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Reported, not fatal: the email went out, only the bookkeeping
		// record is gone.
		a.log.WarnContext(ctx, "delivered schedule has no record",
			slog.String("schedule_id", in.ScheduleID),
		)
	case errors.Is(err, store.ErrIllegalTransition):
		// A cancellation raced the firing and won the record. The email
		// was already transmitted; surface the conflict loudly.
		a.log.WarnContext(ctx, "delivered schedule no longer marked scheduled",
			slog.String("schedule_id", in.ScheduleID),
			slog.Any("error", err),
		)
	case err != nil:
		// The send succeeded but is not yet durable in the store.
		return fmt.Errorf("delivery: mark sent %s: %w", in.ScheduleID, err)
	}

	if err := a.publisher.Publish(ctx, events.Event{
		Type:       events.TypeSent,
		ScheduleID: in.ScheduleID,
		Recipient:  in.Recipient,
		Subject:    in.Subject,
		TargetTime: in.TargetTime,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		a.log.WarnContext(ctx, "failed to publish sent event",
			slog.String("schedule_id", in.ScheduleID),
			slog.Any("error", err),
		)
	}

	a.log.InfoContext(ctx, "scheduled email delivered",
		slog.String("schedule_id", in.ScheduleID),
		slog.String("recipient", in.Recipient),
		slog.String("message_id", messageID),
	)
	return nil
}
