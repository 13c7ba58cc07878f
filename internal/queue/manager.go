// Package queue runs the durable delivery substrate on River: scheduled
// deliveries become Postgres-backed jobs that survive process restarts and
// fire at their target time, plus a periodic sweep that flags schedule
// records a firing appears to have missed.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/mailblocks/internal/scheduler"
	"github.com/dmitrymomot/mailblocks/internal/store"
)

const deliveryQueue = "delivery"

var (
	// ErrPoolRequired is returned when creating a manager without a
	// database pool.
	ErrPoolRequired = errors.New("queue: pool is required")

	// ErrAlreadyStarted is returned when starting a running manager.
	ErrAlreadyStarted = errors.New("queue: already started")

	// ErrNotStarted is returned when stopping a manager that is not
	// running.
	ErrNotStarted = errors.New("queue: not started")

	// ErrInvalidHandle is returned when a handle does not address a
	// River job.
	ErrInvalidHandle = errors.New("queue: invalid handle")
)

// config holds manager configuration.
type config struct {
	logger        *slog.Logger
	sweepStore    store.Store
	sweepSchedule string
	sweepGrace    time.Duration
	maxWorkers    int
	maxAttempts   int
}

// Option configures the queue manager.
type Option func(*config)

// WithLogger sets the logger for job processing.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxWorkers bounds concurrent delivery jobs. Defaults to 10.
func WithMaxWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithMaxAttempts sets how many times the substrate retries a failed
// delivery attempt. Defaults to 1: a provider failure is reported, not
// retried, unless the operator opts in.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithStaleSweep registers a periodic job on the given cron schedule
// (5 fields: min hour day month weekday) that logs schedule records still
// marked scheduled after their target time plus grace.
func WithStaleSweep(st store.Store, schedule string, grace time.Duration) Option {
	return func(c *config) {
		c.sweepStore = st
		c.sweepSchedule = schedule
		if grace > 0 {
			c.sweepGrace = grace
		}
	}
}

// Manager owns the River client: it inserts scheduled delivery jobs,
// processes them with registered workers, and cancels parked ones. It
// implements scheduler.Scheduler with the River job id as the handle.
type Manager struct {
	client *river.Client[pgx.Tx]
	logger *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewManager creates the queue manager. The River client is created
// immediately, so deliveries can be scheduled before Start is called.
func NewManager(pool *pgxpool.Pool, deliverer scheduler.Deliverer, opts ...Option) (*Manager, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}

	cfg := &config{
		maxWorkers:  10,
		maxAttempts: 1,
		sweepGrace:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &deliveryWorker{deliverer: deliverer, logger: cfg.logger})

	var periodicJobs []*river.PeriodicJob
	if cfg.sweepStore != nil {
		river.AddWorker(workers, &sweepWorker{
			store:  cfg.sweepStore,
			grace:  cfg.sweepGrace,
			logger: cfg.logger,
		})
		cronSchedule, err := parseCronSchedule(cfg.sweepSchedule)
		if err != nil {
			return nil, fmt.Errorf("queue: invalid sweep schedule %q: %w", cfg.sweepSchedule, err)
		}
		periodicJobs = append(periodicJobs, river.NewPeriodicJob(
			cronSchedule,
			func() (river.JobArgs, *river.InsertOpts) {
				return sweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		))
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			deliveryQueue: {MaxWorkers: cfg.maxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: periodicJobs,
		Logger:       cfg.logger,
		MaxAttempts:  cfg.maxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("queue: create client: %w", err)
	}

	return &Manager{
		client: client,
		logger: cfg.logger,
	}, nil
}

// Start begins processing delivery jobs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	if err := m.client.Start(ctx); err != nil {
		return fmt.Errorf("queue: start client: %w", err)
	}
	m.started = true
	m.logger.Info("delivery queue started")
	return nil
}

// Stop gracefully shuts down the manager, waiting for in-flight jobs.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return ErrNotStarted
	}
	if err := m.client.Stop(ctx); err != nil {
		return fmt.Errorf("queue: stop client: %w", err)
	}
	m.started = false
	m.logger.Info("delivery queue stopped")
	return nil
}

// Scheduler exposes the manager as a scheduler.Scheduler. The lifecycle
// methods (Start/Stop above) belong to the manager itself; the returned
// value starts and cancels individual suspended deliveries.
func (m *Manager) Scheduler() scheduler.Scheduler {
	return riverScheduler{m}
}

type riverScheduler struct {
	m *Manager
}

func (s riverScheduler) Start(ctx context.Context, in scheduler.Input) (string, error) {
	return s.m.startDelivery(ctx, in)
}

func (s riverScheduler) Cancel(ctx context.Context, handle string) error {
	return s.m.Cancel(ctx, handle)
}

// startDelivery inserts the delivery with River's ScheduledAt, which parks
// it durably until the target time. A target time in the past runs as soon
// as a worker picks it up.
func (m *Manager) startDelivery(ctx context.Context, in scheduler.Input) (string, error) {
	res, err := m.client.Insert(ctx, deliveryArgs{Input: in}, &river.InsertOpts{
		Queue:       deliveryQueue,
		ScheduledAt: in.TargetTime,
		Tags:        []string{"schedule:" + in.ScheduleID},
	})
	if err != nil {
		return "", fmt.Errorf("queue: schedule delivery: %w", err)
	}
	return strconv.FormatInt(res.Job.ID, 10), nil
}

// Cancel signals a parked delivery job to terminate without firing.
// Cancelling a job that has already run, or that does not exist, is a no-op.
func (m *Manager) Cancel(ctx context.Context, handle string) error {
	jobID, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}

	if _, err := m.client.JobCancel(ctx, jobID); err != nil {
		if errors.Is(err, rivertype.ErrNotFound) {
			m.logger.WarnContext(ctx, "cancel of unknown delivery job",
				slog.String("handle", handle),
			)
			return nil
		}
		return fmt.Errorf("queue: cancel job %d: %w", jobID, err)
	}
	return nil
}

type cronScheduleAdapter struct {
	schedule cron.Schedule
}

func (a *cronScheduleAdapter) Next(current time.Time) time.Time {
	return a.schedule.Next(current)
}

func parseCronSchedule(expr string) (river.PeriodicSchedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	return &cronScheduleAdapter{schedule: schedule}, nil
}
