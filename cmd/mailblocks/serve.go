package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mailblocks/internal/api"
	"github.com/dmitrymomot/mailblocks/internal/config"
	"github.com/dmitrymomot/mailblocks/internal/database"
	"github.com/dmitrymomot/mailblocks/internal/delivery"
	"github.com/dmitrymomot/mailblocks/internal/events"
	"github.com/dmitrymomot/mailblocks/internal/queue"
	"github.com/dmitrymomot/mailblocks/internal/scheduler"
	"github.com/dmitrymomot/mailblocks/internal/service"
	"github.com/dmitrymomot/mailblocks/internal/store"
	"github.com/dmitrymomot/mailblocks/pkg/blocks"
	"github.com/dmitrymomot/mailblocks/pkg/compiler"
	"github.com/dmitrymomot/mailblocks/pkg/logger"
	"github.com/dmitrymomot/mailblocks/pkg/mailer"
	"github.com/dmitrymomot/mailblocks/pkg/mailer/resend"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the delivery scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(baseCtx context.Context) error {
	ctx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewWithSentry(cfg.Logger)

	publisher, closePublisher, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	sender := buildSender(cfg, log)
	comp := compiler.New(blocks.Default())

	var (
		st      store.Store
		sched   scheduler.Scheduler
		manager *queue.Manager
		memory  *scheduler.Memory
	)

	if cfg.Database.ConnectionString != "" {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		pg, err := store.NewPostgres(ctx, pool, log)
		if err != nil {
			return err
		}
		st = pg

		activity := delivery.New(comp, sender, st, log, delivery.WithPublisher(publisher))
		manager, err = queue.NewManager(pool, activity,
			queue.WithLogger(log),
			queue.WithMaxWorkers(cfg.MaxWorkers),
			queue.WithMaxAttempts(cfg.MaxAttempts),
			queue.WithStaleSweep(st, cfg.SweepSchedule, cfg.SweepGrace),
		)
		if err != nil {
			return err
		}
		sched = manager.Scheduler()
	} else {
		fs, err := store.NewFileStore(cfg.StorePath, log)
		if err != nil {
			return err
		}
		st = fs

		activity := delivery.New(comp, sender, st, log, delivery.WithPublisher(publisher))
		memory = scheduler.NewMemory(activity, log)

		// Restarts lose in-process timers; rebuild them from the store.
		records, err := st.List(ctx)
		if err != nil {
			return err
		}
		memory.Rearm(ctx, records)
		sched = memory
	}

	svc := service.New(st, sched, comp, sender, log, service.WithPublisher(publisher))
	handler := api.NewHandler(svc, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if manager != nil {
		g.Go(func() error {
			if err := manager.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return manager.Stop(stopCtx)
		})
	}

	g.Go(func() error {
		log.Info("http server listening", slog.String("address", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if memory != nil {
		// Let in-flight firings finish before the process exits.
		memory.Wait()
	}
	return err
}

func buildSender(cfg config.Config, log *slog.Logger) mailer.Sender {
	var sender mailer.Sender
	if cfg.Resend.APIKey != "" {
		sender = resend.New(cfg.Resend)
	} else {
		log.Warn("RESEND_API_KEY not set, emails will be logged instead of sent")
		sender = mailer.NewLogSender(log)
	}
	return mailer.NewThrottled(sender, cfg.SendRate, cfg.SendBurst)
}

func buildPublisher(cfg config.Config) (events.Publisher, func(), error) {
	if cfg.AMQPURL == "" {
		return events.Noop{}, func() {}, nil
	}
	pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return nil, nil, err
	}
	return pub, func() { _ = pub.Close() }, nil
}
