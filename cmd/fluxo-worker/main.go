package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"fluxo/internal/amqp"
	"fluxo/internal/config"
	"fluxo/internal/log"
	gsheet "fluxo/internal/sheets/google"
	sheetsmem "fluxo/internal/sheets/memory"
	"fluxo/internal/storage"
	"fluxo/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting fluxo-worker")

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

	w := buildWorker(repo, cfg, logger)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Rows that errored on a previous run get another chance now that
	// the journal may be reachable again.
	if n, err := repo.RetryMirrorErrors(ctx); err != nil {
		logger.Error("Mirror error retry failed", "error", err)
	} else if n > 0 {
		logger.Info("Requeued errored mirror rows", "count", n)
	}

	// Drain anything that accumulated while the worker was down.
	if err := w.StartupCheck(ctx); err != nil {
		logger.Error("Startup mirror check failed", "error", err)
		// Don't exit - continue with normal operation
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeEvents(ctx, w.HandleEvent)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.MirrorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.ProcessPending(ctx); err != nil {
					logger.Error("Pending sweep failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

// buildWorker picks the journal backend: Google Sheets when configured,
// the in-memory journal otherwise so local runs still exercise the
// mirror path.
func buildWorker(repo *storage.Repository, cfg *config.Config, logger *log.Logger) *worker.MirrorWorker {
	if cfg.GoogleSpreadsheetID != "" {
		cli, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		logger.Info("Google Sheets journal initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		return worker.NewMirrorWorker(repo, cli, cli, cli, cfg.MirrorBatchSize)
	}

	logger.Info("Google Sheets disabled - journaling to memory")
	j := sheetsmem.New()
	return worker.NewMirrorWorker(repo, j, j, j, cfg.MirrorBatchSize)
}
