package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"advancebot/internal/amqp"
	"advancebot/internal/backend"
	"advancebot/internal/config"
	"advancebot/internal/log"
	"advancebot/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel)

	logger.Info("Starting summary-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the summary worker")
		os.Exit(1)
	}
	if cfg.DataBackend == "memory" {
		logger.Warn("Memory backend is process-local; the worker sees its own empty ledger")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := backend.NewFactory(logger).Create(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", "error", err)
			}
		}()
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	summaryWorker := worker.NewSummaryWorker(result.Backend, result.Backend)
	workerLog := log.ForComponent(log.ComponentWorker)

	// Consume commit events until the context ends.
	go func() {
		if err := amqpClient.ConsumeTransactionCommitted(ctx, summaryWorker.HandleCommitMessage); err != nil {
			if err != context.Canceled {
				workerLog.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Periodic refresh heals rows whose events were lost.
	refreshTicker := time.NewTicker(cfg.SummaryRefresh)
	defer refreshTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-refreshTicker.C:
				if err := summaryWorker.RefreshRecent(ctx); err != nil {
					workerLog.Error("Periodic summary refresh failed", "error", err)
				}
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give the in-flight delivery a moment to finish.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
