package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailblocks/internal/delivery"
	"github.com/dmitrymomot/mailblocks/internal/scheduler"
	"github.com/dmitrymomot/mailblocks/internal/store"
	"github.com/dmitrymomot/mailblocks/pkg/compiler"
	"github.com/dmitrymomot/mailblocks/pkg/mailer"
)

type fakeSender struct {
	mu    sync.Mutex
	fail  error
	calls []*mailer.Email
}

func (s *fakeSender) Send(_ context.Context, email *mailer.Email) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.calls = append(s.calls, email)
	return "msg-123", nil
}

const minimalDoc = `{"content":[{"type":"Text","props":{"content":"See you at 10am."}}]}`

func newActivity(t *testing.T, sender mailer.Sender) (*delivery.Activity, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "schedules.json"), nil)
	require.NoError(t, err)
	return delivery.New(compiler.New(nil), sender, st, nil), st
}

func seedRecord(t *testing.T, st store.Store, id string) store.Record {
	t.Helper()
	rec := store.Record{
		ScheduleID: id,
		Recipient:  "user@example.com",
		Subject:    "Hi",
		Payload:    json.RawMessage(minimalDoc),
		TargetTime: time.Now().Add(-time.Second).UTC(),
		Status:     store.StatusScheduled,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.Create(context.Background(), rec))
	return rec
}

func inputFor(rec store.Record) scheduler.Input {
	return scheduler.Input{
		ScheduleID: rec.ScheduleID,
		Recipient:  rec.Recipient,
		Subject:    rec.Subject,
		Payload:    rec.Payload,
		TargetTime: rec.TargetTime,
	}
}

func TestActivity_Deliver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sender := &fakeSender{}
	activity, st := newActivity(t, sender)
	rec := seedRecord(t, st, "sched-1")

	require.NoError(t, activity.Deliver(ctx, inputFor(rec)))

	require.Len(t, sender.calls, 1, "exactly one transmit per firing")
	email := sender.calls[0]
	require.Equal(t, []string{"user@example.com"}, email.To)
	require.Equal(t, "Hi", email.Subject)
	require.Contains(t, email.HTML, "See you at 10am.")
	require.Contains(t, email.Text, "See you at 10am.")

	got, err := st.Get(ctx, "sched-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
}

func TestActivity_Deliver_ProviderFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sender := &fakeSender{fail: errors.New("resend: 500")}
	activity, st := newActivity(t, sender)
	rec := seedRecord(t, st, "sched-1")

	err := activity.Deliver(ctx, inputFor(rec))
	require.ErrorIs(t, err, mailer.ErrSendFailed)

	got, err := st.Get(ctx, "sched-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusScheduled, got.Status, "a failed transmit leaves the record untouched")
	require.Nil(t, got.SentAt)
}

func TestActivity_Deliver_MalformedPayload(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	activity, _ := newActivity(t, sender)

	err := activity.Deliver(context.Background(), scheduler.Input{
		ScheduleID: "sched-1",
		Recipient:  "user@example.com",
		Subject:    "Hi",
		Payload:    json.RawMessage(`{not json`),
	})
	require.Error(t, err)
	require.Empty(t, sender.calls, "nothing transmits when the payload cannot be decoded")
}

func TestActivity_Deliver_RecordAlreadyCancelled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sender := &fakeSender{}
	activity, st := newActivity(t, sender)
	rec := seedRecord(t, st, "sched-1")

	_, err := st.Transition(ctx, "sched-1", store.StatusScheduled, store.StatusCancelled, time.Now())
	require.NoError(t, err)

	// The firing raced a cancellation and lost the record. The transmit
	// still happened; the conflict is logged, not returned.
	require.NoError(t, activity.Deliver(ctx, inputFor(rec)))
	require.Len(t, sender.calls, 1)

	got, err := st.Get(ctx, "sched-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, got.Status, "a terminal record is never overwritten")
}

func TestActivity_Deliver_RecordMissing(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	activity, _ := newActivity(t, sender)

	err := activity.Deliver(context.Background(), scheduler.Input{
		ScheduleID: "ghost",
		Recipient:  "user@example.com",
		Subject:    "Hi",
		Payload:    json.RawMessage(minimalDoc),
	})
	require.NoError(t, err, "a missing record is reported, not fatal")
	require.Len(t, sender.calls, 1)
}
