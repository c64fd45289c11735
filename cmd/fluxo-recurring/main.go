package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fluxo/internal/amqp"
	"fluxo/internal/config"
	"fluxo/internal/core"
	"fluxo/internal/log"
	"fluxo/internal/services"
	"fluxo/internal/storage"
)

// The API expands recurring chains lazily on reads; this worker keeps
// chains current on deployments where nobody reads for a while, so due
// occurrences still reach the mirror journal on time.
func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting fluxo-recurring")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, expanding without events", "error", err)
			events = nil
		} else {
			defer events.Close()
		}
	}

	expander := services.NewRecurrenceExpander(repo, events)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	expand := func(now time.Time) {
		count, err := expander.ExpandDue(ctx, core.DateOf(now))
		if err != nil {
			logger.Error("Recurring expansion failed", "error", err)
			return
		}
		if count > 0 {
			logger.Info("Recurring expansion complete", "created", count)
		}
	}

	expand(time.Now())

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Recurring worker shutdown complete")
			return
		case now := <-ticker.C:
			expand(now)
		}
	}
}
