package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/helpdesk-labs/triage-service/internal/app"
	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Queue.Driver == app.QueueDriverMemory {
		log.Fatal("the standalone worker needs a shared queue; set QUEUE_DRIVER=redis")
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build app", zap.Error(err))
	}
	defer a.Close()

	// Jobs left running by a crashed worker are returned to ready only when
	// asked to, since another live worker may own them.
	pool := a.WorkerPool(cfg.Worker.RecoverOnStart)
	if err := pool.Run(ctx); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker stopped")
}
