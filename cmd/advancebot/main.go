package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"advancebot/internal/amqp"
	"advancebot/internal/backend"
	"advancebot/internal/catalog"
	"advancebot/internal/config"
	"advancebot/internal/dialog"
	"advancebot/internal/gateway"
	"advancebot/internal/log"
	"advancebot/internal/session"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
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

	// Commit events are optional; without a broker commits still land.
	var events dialog.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without commit events", "error", err)
		} else {
			defer client.Close()
			events = client
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("Commit events disabled - no AMQP_URL provided")
	}

	sessions := session.NewStore(cfg.SessionTTL)
	go func() {
		_ = sessions.Run(ctx, cfg.SessionSweep)
	}()

	engine := dialog.New(dialog.Options{
		Sessions:     sessions,
		Store:        result.Backend,
		Audit:        result.Backend,
		Catalog:      catalog.New(result.Backend, cfg.CatalogTTL),
		Directory:    result.Backend,
		Events:       events,
		Location:     cfg.Location(),
		ReadAttempts: cfg.ReadRetryAttempts,
		ReadBackoff:  cfg.ReadRetryBackoff,
		SummaryTTL:   cfg.SummaryCacheTTL,
		SummarySize:  cfg.SummaryCacheSize,
	})

	go func() {
		_ = engine.Run(ctx, cfg.SessionSweep)
	}()

	srv := gateway.NewServer(":"+cfg.Port, engine)

	// Configure server timeouts and limits. The write timeout leaves
	// room for a sheet append with retries.
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 20 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting advancebot gateway",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
