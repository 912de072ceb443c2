package main

import (
	"context"
	"errors"
	"os"
	"time"

	"remesas/internal/amqp"
	"remesas/internal/backend"
	"remesas/internal/cli"
	applog "remesas/internal/log"
	"remesas/internal/sheets"
	sheetsmem "remesas/internal/sheets/memory"
	"remesas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting remesas-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker")
		os.Exit(1)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	// the worker consumes events, it never publishes them
	bcfg.AMQPURL = ""
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err)
		os.Exit(1)
	}
	defer res.Cleanup()

	var ledger sheets.LedgerWriter = res.Ledger
	if res.Ledger == nil {
		logger.Warn("Google Sheets ledger not configured, paid remesas go to an in-memory ledger")
		ledger = sheetsmem.New()
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	ledgerWorker := worker.NewLedgerWorker(res.Store, ledger, cfg.SyncBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Performing startup sync check...")
	if err := ledgerWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", applog.FieldError, err)
	}

	go func() {
		if err := consumer.ConsumeStatusChanges(ctx, ledgerWorker.HandleStatusEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()
	go ledgerWorker.RunPeriodic(ctx, cfg.SyncInterval)

	logger.Info("Worker running", "queue", cfg.AMQPQueue, "interval", cfg.SyncInterval.String(), "batch", cfg.SyncBatchSize)
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
