package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailblocks/internal/store"
)

func newTestStore(t *testing.T) *store.FileStore {
	t.Helper()
	s, err := store.NewFileStore(filepath.Join(t.TempDir(), "schedules.json"), nil)
	require.NoError(t, err)
	return s
}

func testRecord(id string) store.Record {
	return store.Record{
		ScheduleID: id,
		Recipient:  "user@example.com",
		Subject:    "Hi",
		Payload:    json.RawMessage(`{"content":[]}`),
		TargetTime: time.Now().Add(time.Hour).UTC(),
		Status:     store.StatusScheduled,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestFileStore_CreateAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	rec := testRecord("sched-1")
	require.NoError(t, s.Create(ctx, rec))

	got, err := s.Get(ctx, "sched-1")
	require.NoError(t, err)
	require.Equal(t, rec.Recipient, got.Recipient)
	require.Equal(t, store.StatusScheduled, got.Status)
	require.JSONEq(t, string(rec.Payload), string(got.Payload))
}

func TestFileStore_Create_Duplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, testRecord("sched-1")))
	err := s.Create(ctx, testRecord("sched-1"))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestFileStore_Get_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFileStore_SetHandle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Create(ctx, testRecord("sched-1")))
	require.NoError(t, s.SetHandle(ctx, "sched-1", "job-42"))

	got, err := s.Get(ctx, "sched-1")
	require.NoError(t, err)
	require.Equal(t, "job-42", got.Handle)

	require.ErrorIs(t, s.SetHandle(ctx, "missing", "x"), store.ErrNotFound)
}

func TestFileStore_Transition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("scheduled to sent stamps sentAt", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.Create(ctx, testRecord("sched-1")))

		at := time.Now().UTC().Truncate(time.Second)
		got, err := s.Transition(ctx, "sched-1", store.StatusScheduled, store.StatusSent, at)
		require.NoError(t, err)
		require.Equal(t, store.StatusSent, got.Status)
		require.NotNil(t, got.SentAt)
		require.True(t, got.SentAt.Equal(at))
		require.Nil(t, got.CancelledAt)
	})

	t.Run("scheduled to cancelled stamps cancelledAt", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.Create(ctx, testRecord("sched-1")))

		at := time.Now().UTC()
		got, err := s.Transition(ctx, "sched-1", store.StatusScheduled, store.StatusCancelled, at)
		require.NoError(t, err)
		require.Equal(t, store.StatusCancelled, got.Status)
		require.NotNil(t, got.CancelledAt)
		require.Nil(t, got.SentAt)
	})

	t.Run("cancel after sent is illegal", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		require.NoError(t, s.Create(ctx, testRecord("sched-1")))

		_, err := s.Transition(ctx, "sched-1", store.StatusScheduled, store.StatusSent, time.Now())
		require.NoError(t, err)

		_, err = s.Transition(ctx, "sched-1", store.StatusScheduled, store.StatusCancelled, time.Now())
		require.ErrorIs(t, err, store.ErrIllegalTransition)
		require.Contains(t, err.Error(), "is sent")

		got, err := s.Get(ctx, "sched-1")
		require.NoError(t, err)
		require.Equal(t, store.StatusSent, got.Status, "losing transition must not overwrite the record")
	})

	t.Run("unknown id", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		_, err := s.Transition(ctx, "missing", store.StatusScheduled, store.StatusSent, time.Now())
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestFileStore_Transition_ConcurrentWriters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Create(ctx, testRecord("sched-1")))

	// One sender and one canceller race on the same record; exactly one
	// transition may win.
	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = s.Transition(ctx, "sched-1", store.StatusScheduled, store.StatusSent, time.Now())
	}()
	go func() {
		defer wg.Done()
		_, results[1] = s.Transition(ctx, "sched-1", store.StatusScheduled, store.StatusCancelled, time.Now())
	}()
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, store.ErrIllegalTransition)
			losses++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)

	got, err := s.Get(ctx, "sched-1")
	require.NoError(t, err)
	require.True(t, got.Status.Terminal())
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "schedules.json")

	s, err := store.NewFileStore(path, nil)
	require.NoError(t, err)
	for i := range 3 {
		require.NoError(t, s.Create(ctx, testRecord(fmt.Sprintf("sched-%d", i))))
	}

	reopened, err := store.NewFileStore(path, nil)
	require.NoError(t, err)
	records, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	require.True(t, store.StatusScheduled.Valid())
	require.False(t, store.Status("queued").Valid())

	require.False(t, store.StatusScheduled.Terminal())
	require.True(t, store.StatusSent.Terminal())
	require.True(t, store.StatusCancelled.Terminal())
}
