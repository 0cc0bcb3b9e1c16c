package main

import (
	"context"
	"errors"
	"time"

	"foodbudget/internal/amqp"
	"foodbudget/internal/cli"
	"foodbudget/internal/log"
	"foodbudget/internal/metrics"
	"foodbudget/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(log.ComponentWorker)
	logger.Info("Starting foodbudget-worker", log.FieldOperation, log.OpStartup)

	if !cfg.UsesQueue() {
		cli.Fatal(logger, "Worker requires AMQP_URL", errors.New("no message broker configured"))
	}

	m := metrics.New()
	res := cli.InitBackend(context.Background(), logger, cfg, m)
	defer cli.CloseBackend(logger, res)
	b := res.Backend
	if !b.Queued() {
		logger.Info("Backend writes directly; nothing to sync", "backend", cfg.DataBackend)
		return
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	wc := worker.DefaultConfig()
	wc.BatchSize = cfg.SyncBatchSize
	wc.Concurrency = cfg.SyncConcurrency
	syncWorker := worker.NewSyncWorker(b.Records, b.Pending, wc, m, logger)

	ctx, stop, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// The poller catches messages lost while the broker was down.
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		_ = syncWorker.Run(ctx, cfg.SyncInterval)
	}()

	if err := amqpClient.ConsumeExpenseSync(ctx, syncWorker.HandleSyncMessage); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		stop()
	}

	cli.WaitForShutdown(ctx, done)
	<-pollDone
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}
