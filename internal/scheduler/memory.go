package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/mailblocks/internal/store"
)

// Orchestrator instance states. Waiting is the only state that accepts a
// cancellation; Cancelled and Done are terminal and the instance is removed.
type instanceState int

const (
	stateWaiting instanceState = iota
	stateFiring
	stateCancelled
	stateDone
)

func (s instanceState) String() string {
	switch s {
	case stateWaiting:
		return "waiting"
	case stateFiring:
		return "firing"
	case stateCancelled:
		return "cancelled"
	default:
		return "done"
	}
}

// Memory is an in-process scheduler. Each started delivery gets one
// suspended instance: a goroutine blocked on a timer, holding no business
// state beyond the delivery input. Durability comes from the schedule store,
// not from this type; Rearm rebuilds instances for every non-terminal record
// after a restart.
type Memory struct {
	deliverer   Deliverer
	log         *slog.Logger
	fireTimeout time.Duration
	stop        chan struct{}
	mu          sync.Mutex
	instances   map[string]*instance
	wg          sync.WaitGroup
}

type instance struct {
	handle string
	state  instanceState
	cancel chan struct{}
}

// MemoryOption configures the in-memory scheduler.
type MemoryOption func(*Memory)

// WithFireTimeout bounds a single delivery attempt. Defaults to one minute,
// matching the usual start-to-close timeout of workflow substrates.
func WithFireTimeout(d time.Duration) MemoryOption {
	return func(m *Memory) {
		if d > 0 {
			m.fireTimeout = d
		}
	}
}

// NewMemory creates an in-memory scheduler that fires deliveries through the
// given deliverer.
func NewMemory(deliverer Deliverer, log *slog.Logger, opts ...MemoryOption) *Memory {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Memory{
		deliverer:   deliverer,
		log:         log,
		fireTimeout: time.Minute,
		stop:        make(chan struct{}),
		instances:   make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start implements Scheduler. The handle is derived from the schedule id so
// it stays stable across restarts and re-arms.
func (m *Memory) Start(ctx context.Context, in Input) (string, error) {
	handle := "mem-" + in.ScheduleID

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[handle]; exists {
		return "", fmt.Errorf("scheduler: instance already started: %s", handle)
	}

	inst := &instance{
		handle: handle,
		cancel: make(chan struct{}),
	}

	// A target time that already passed never enters Waiting: the
	// instance goes straight to Firing and is no longer cancellable.
	delay := time.Until(in.TargetTime)
	if delay <= 0 {
		inst.state = stateFiring
		m.instances[handle] = inst
		m.wg.Add(1)
		go m.fire(inst, in)
		return handle, nil
	}

	inst.state = stateWaiting
	m.instances[handle] = inst
	m.wg.Add(1)
	go m.wait(inst, in, delay)
	return handle, nil
}

// Cancel implements Scheduler. Only an instance still in Waiting is
// affected; anything else (already firing, done, unknown handle) is a no-op.
func (m *Memory) Cancel(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[handle]
	if !ok || inst.state != stateWaiting {
		return nil
	}

	inst.state = stateCancelled
	close(inst.cancel)
	delete(m.instances, handle)
	m.log.Info("suspended delivery cancelled", slog.String("handle", handle))
	return nil
}

// Rearm restarts a suspended instance for every non-terminal record. Call it
// once on process start, before accepting new work.
func (m *Memory) Rearm(ctx context.Context, records []store.Record) {
	for _, rec := range records {
		if rec.Status.Terminal() {
			continue
		}
		_, err := m.Start(ctx, Input{
			ScheduleID: rec.ScheduleID,
			Recipient:  rec.Recipient,
			Subject:    rec.Subject,
			Payload:    rec.Payload,
			TargetTime: rec.TargetTime,
		})
		if err != nil {
			m.log.Error("failed to re-arm schedule",
				slog.String("schedule_id", rec.ScheduleID),
				slog.Any("error", err),
			)
			continue
		}
		m.log.Info("re-armed schedule",
			slog.String("schedule_id", rec.ScheduleID),
			slog.Time("target_time", rec.TargetTime),
		)
	}
}

// Wait releases every parked instance and blocks until in-flight firings
// have finished. Released instances fire nothing; their state lives in the
// store and will be re-armed on the next start. Call it once, on shutdown.
func (m *Memory) Wait() {
	close(m.stop)
	m.wg.Wait()
}

// wait is the suspended computation: a timer racing the cancel signal.
func (m *Memory) wait(inst *instance, in Input, delay time.Duration) {
	defer m.wg.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-inst.cancel:
		return
	case <-m.stop:
		return
	case <-timer.C:
	}

	// The timer elapsed, but a concurrent Cancel may have won the race.
	// The state check below makes the transition to Firing authoritative:
	// past this point a Cancel is a no-op.
	m.mu.Lock()
	if inst.state != stateWaiting {
		m.mu.Unlock()
		return
	}
	inst.state = stateFiring
	m.mu.Unlock()

	m.wg.Add(1)
	m.fire(inst, in)
}

// fire invokes the delivery activity exactly once and retires the instance
// regardless of the outcome. A failed delivery is reported, not retried;
// the record stays in its pre-firing status for operators to see.
func (m *Memory) fire(inst *instance, in Input) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.fireTimeout)
	defer cancel()

	if err := m.deliverer.Deliver(ctx, in); err != nil {
		m.log.Error("delivery failed",
			slog.String("schedule_id", in.ScheduleID),
			slog.Any("error", err),
		)
	}

	m.mu.Lock()
	inst.state = stateDone
	delete(m.instances, inst.handle)
	m.mu.Unlock()
}
