// Package service implements the delivery pipeline's inbound operations:
// schedule, cancel, list, preview, and immediate send. It owns the ordering
// rules that keep the schedule store consistent with the durable scheduler,
// in particular the cancel-versus-firing race.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mailblocks/internal/events"
	"github.com/dmitrymomot/mailblocks/internal/scheduler"
	"github.com/dmitrymomot/mailblocks/internal/store"
	"github.com/dmitrymomot/mailblocks/pkg/compiler"
	"github.com/dmitrymomot/mailblocks/pkg/mailer"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Service wires the compiler, store, scheduler, and mail provider into the
// five inbound operations.
type Service struct {
	store     store.Store
	scheduler scheduler.Scheduler
	compiler  *compiler.Compiler
	sender    mailer.Sender
	publisher events.Publisher
	log       *slog.Logger
	now       func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithPublisher sets the lifecycle event publisher. Defaults to a noop.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates the service.
func New(st store.Store, sched scheduler.Scheduler, comp *compiler.Compiler, sender mailer.Sender, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		store:     st,
		scheduler: sched,
		compiler:  comp,
		sender:    sender,
		publisher: events.Noop{},
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleInput is a request to deliver a document at a future time.
type ScheduleInput struct {
	Recipient  string
	Subject    string
	Document   compiler.Document
	TargetTime time.Time
}

// Schedule validates the request, persists a schedule record, and starts a
// suspended delivery unit. The record is created before the unit starts so
// the delivery activity always finds it, however soon the unit fires.
func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (store.Record, error) {
	if err := s.validateMessage(in.Recipient, in.Subject, in.Document); err != nil {
		return store.Record{}, err
	}
	now := s.now().UTC()
	if !in.TargetTime.After(now) {
		return store.Record{}, fmt.Errorf("%w: %s", ErrPastTargetTime, in.TargetTime.Format(time.RFC3339))
	}

	payload, err := json.Marshal(in.Document)
	if err != nil {
		return store.Record{}, fmt.Errorf("service: encode document: %w", err)
	}

	rec := store.Record{
		ScheduleID: uuid.NewString(),
		Recipient:  in.Recipient,
		Subject:    in.Subject,
		Payload:    payload,
		TargetTime: in.TargetTime.UTC(),
		Status:     store.StatusScheduled,
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return store.Record{}, err
	}

	handle, err := s.scheduler.Start(ctx, scheduler.Input{
		ScheduleID: rec.ScheduleID,
		Recipient:  rec.Recipient,
		Subject:    rec.Subject,
		Payload:    payload,
		TargetTime: rec.TargetTime,
	})
	if err != nil {
		// The unit never started, so the record is dead weight; retire it
		// instead of leaving a schedule nothing will ever fire.
		if _, cerr := s.store.Transition(ctx, rec.ScheduleID, store.StatusScheduled, store.StatusCancelled, s.now().UTC()); cerr != nil {
			s.log.ErrorContext(ctx, "failed to retire unstartable schedule",
				slog.String("schedule_id", rec.ScheduleID),
				slog.Any("error", cerr),
			)
		}
		return store.Record{}, fmt.Errorf("service: start suspended delivery: %w", err)
	}

	rec.Handle = handle
	if err := s.store.SetHandle(ctx, rec.ScheduleID, handle); err != nil {
		s.log.ErrorContext(ctx, "failed to persist orchestrator handle",
			slog.String("schedule_id", rec.ScheduleID),
			slog.Any("error", err),
		)
	}

	s.publish(ctx, events.TypeScheduled, rec)
	s.log.InfoContext(ctx, "delivery scheduled",
		slog.String("schedule_id", rec.ScheduleID),
		slog.String("handle", handle),
		slog.Time("target_time", rec.TargetTime),
	)
	return rec, nil
}

// Cancel terminates a pending delivery. The ordering matters: check the
// record's status first, cancel the suspended unit, then write the terminal
// status with a compare-and-set. If a firing won the race in between, the
// CAS fails and the caller learns the record was sent, not cancelled.
func (s *Service) Cancel(ctx context.Context, scheduleID string) (store.Record, error) {
	rec, err := s.store.Get(ctx, scheduleID)
	if err != nil {
		return store.Record{}, err
	}
	if rec.Status != store.StatusScheduled {
		return store.Record{}, fmt.Errorf("%w: status is %s", ErrNotCancellable, rec.Status)
	}

	if err := s.scheduler.Cancel(ctx, rec.Handle); err != nil {
		// The unit may already be firing or gone; the CAS below is the
		// authority on what the record becomes.
		s.log.WarnContext(ctx, "substrate cancel failed",
			slog.String("schedule_id", scheduleID),
			slog.String("handle", rec.Handle),
			slog.Any("error", err),
		)
	}

	updated, err := s.store.Transition(ctx, scheduleID, store.StatusScheduled, store.StatusCancelled, s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrIllegalTransition) {
			return store.Record{}, fmt.Errorf("%w: %v", ErrNotCancellable, err)
		}
		return store.Record{}, err
	}

	s.publish(ctx, events.TypeCancelled, updated)
	s.log.InfoContext(ctx, "delivery cancelled", slog.String("schedule_id", scheduleID))
	return updated, nil
}

// List returns schedule records, most-future-first, optionally filtered by
// status.
func (s *Service) List(ctx context.Context, status *store.Status) ([]store.Record, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if status != nil {
		records = slices.DeleteFunc(records, func(r store.Record) bool {
			return r.Status != *status
		})
	}
	slices.SortFunc(records, func(a, b store.Record) int {
		return b.TargetTime.Compare(a.TargetTime)
	})
	return records, nil
}

// Preview compiles a document without any delivery side effects.
func (s *Service) Preview(doc compiler.Document, subject string) compiler.Result {
	return s.compiler.Compile(doc, subject)
}

// SendInput is a request to deliver a document immediately.
type SendInput struct {
	Recipient string
	Subject   string
	Document  compiler.Document
}

// SendNow compiles and transmits a document right away, bypassing the
// scheduler and the store. It returns the provider-assigned message id.
func (s *Service) SendNow(ctx context.Context, in SendInput) (string, error) {
	if err := s.validateMessage(in.Recipient, in.Subject, in.Document); err != nil {
		return "", err
	}

	artifact := s.compiler.Compile(in.Document, in.Subject)
	messageID, err := s.sender.Send(ctx, &mailer.Email{
		To:      []string{in.Recipient},
		Subject: in.Subject,
		HTML:    artifact.HTML,
		Text:    artifact.Text,
	})
	if err != nil {
		return "", errors.Join(mailer.ErrSendFailed, err)
	}

	s.log.InfoContext(ctx, "email sent",
		slog.String("recipient", in.Recipient),
		slog.String("message_id", messageID),
	)
	return messageID, nil
}

func (s *Service) validateMessage(recipient, subject string, doc compiler.Document) error {
	if !emailPattern.MatchString(recipient) {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}
	if subject == "" {
		return ErrEmptySubject
	}
	if len(doc.Content) == 0 {
		return ErrEmptyDocument
	}
	return nil
}

// publish emits a lifecycle event; failures are logged, never propagated.
func (s *Service) publish(ctx context.Context, eventType string, rec store.Record) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		ScheduleID: rec.ScheduleID,
		Recipient:  rec.Recipient,
		Subject:    rec.Subject,
		TargetTime: rec.TargetTime,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.log.WarnContext(ctx, "failed to publish lifecycle event",
			slog.String("type", eventType),
			slog.String("schedule_id", rec.ScheduleID),
			slog.Any("error", err),
		)
	}
}
