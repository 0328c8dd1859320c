package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetcast/internal/amqp"
	"budgetcast/internal/cli"
	"budgetcast/internal/config"
	"budgetcast/internal/log"
	"budgetcast/internal/worker"
)

const statsInterval = time.Minute

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting budgetcast-worker")

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo, err := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	if err != nil {
		os.Exit(1)
	}
	defer repo.Close()

	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	journal := worker.NewJournalWorker(repo, 10*time.Second)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return journal.Run(gctx, client)
	})
	g.Go(func() error {
		journal.ReportStats(gctx, statsInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	processed, failed := journal.Stats()
	logger.Info("Worker shutdown complete", "processed", processed, "failed", failed)
}
