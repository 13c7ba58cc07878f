package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/mailblocks/internal/config"
	"github.com/dmitrymomot/mailblocks/internal/database"
	"github.com/dmitrymomot/mailblocks/internal/delivery"
	"github.com/dmitrymomot/mailblocks/internal/queue"
	"github.com/dmitrymomot/mailblocks/internal/store"
	"github.com/dmitrymomot/mailblocks/pkg/blocks"
	"github.com/dmitrymomot/mailblocks/pkg/compiler"
	"github.com/dmitrymomot/mailblocks/pkg/logger"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run delivery queue workers only (requires DATABASE_URL)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(baseCtx context.Context) error {
	ctx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Database.ConnectionString == "" {
		return errors.New("worker mode requires DATABASE_URL")
	}
	log := logger.NewWithSentry(cfg.Logger)

	publisher, closePublisher, err := buildPublisher(cfg)
	if err != nil {
		return err
	}
	defer closePublisher()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	st, err := store.NewPostgres(ctx, pool, log)
	if err != nil {
		return err
	}

	sender := buildSender(cfg, log)
	comp := compiler.New(blocks.Default())
	activity := delivery.New(comp, sender, st, log, delivery.WithPublisher(publisher))

	manager, err := queue.NewManager(pool, activity,
		queue.WithLogger(log),
		queue.WithMaxWorkers(cfg.MaxWorkers),
		queue.WithMaxAttempts(cfg.MaxAttempts),
		queue.WithStaleSweep(st, cfg.SweepSchedule, cfg.SweepGrace),
	)
	if err != nil {
		return err
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return manager.Stop(stopCtx)
}
