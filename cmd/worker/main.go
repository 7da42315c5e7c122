// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adiadia/hitl-gateway/internal/config"
	"github.com/adiadia/hitl-gateway/internal/logging"
	"github.com/adiadia/hitl-gateway/internal/persistence/postgres"
	"github.com/adiadia/hitl-gateway/internal/repository"
	"github.com/adiadia/hitl-gateway/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(cfg.Env, cfg.LogLevel)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if err := postgres.SchemaReady(ctx, pool); err != nil {
		log.Fatalf("schema not ready: %v", err)
	}

	w := worker.New(worker.Deps{
		Store:         repository.NewWorkflowRepository(pool, logger),
		Logger:        logger,
		RetentionDays: cfg.RetentionDays,
		Interval:      cfg.CleanupInterval,
	})

	if err := w.Run(ctx); err != nil {
		log.Fatalf("sweeper failed: %v", err)
	}
}
