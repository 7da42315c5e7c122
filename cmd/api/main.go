// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adiadia/hitl-gateway/internal/checkpoint"
	"github.com/adiadia/hitl-gateway/internal/config"
	"github.com/adiadia/hitl-gateway/internal/decision"
	"github.com/adiadia/hitl-gateway/internal/logging"
	"github.com/adiadia/hitl-gateway/internal/notify"
	"github.com/adiadia/hitl-gateway/internal/persistence/postgres"
	"github.com/adiadia/hitl-gateway/internal/repository"
	"github.com/adiadia/hitl-gateway/internal/store"
	httptransport "github.com/adiadia/hitl-gateway/internal/transport/http"
	"github.com/adiadia/hitl-gateway/internal/worker"
	"golang.org/x/sync/errgroup"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

type backend struct {
	store  store.Store
	health httptransport.HealthChecker
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env, cfg.LogLevel)

	be, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer be.close()

	// The bus is fed inline to preserve per-workflow order. Network sinks
	// run asynchronously.
	bus := notify.NewBus(16)
	var sinks []notify.Sink
	if cfg.ResumeWebhookURL != "" {
		sinks = append(sinks, notify.Sink{
			Name:     "webhook",
			Notifier: notify.NewWebhookNotifier(cfg.ResumeWebhookURL, cfg.ResumeWebhookSecret, nil, logger),
		})
	}
	if cfg.RedisAddr != "" {
		rdb := notify.NewRedisClient(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable, status publishes will fail until it is", "addr", cfg.RedisAddr, "error", err)
		}
		sinks = append(sinks, notify.Sink{
			Name:     "redis",
			Notifier: notify.NewRedisPublisher(rdb, cfg.RedisChannel),
		})
	}
	remote := notify.NewAsync(notify.NewMulti(logger, sinks...), 30*time.Second, logger)
	defer remote.Wait()
	notifier := notify.NewMulti(logger,
		notify.Sink{Name: "bus", Notifier: bus},
		notify.Sink{Name: "remote", Notifier: remote},
	)

	handler := httptransport.NewRouter(httptransport.Deps{
		Store:           be.store,
		Builder:         checkpoint.NewBuilder(logger),
		Processor:       decision.NewProcessor(logger),
		Notifier:        notifier,
		Events:          bus,
		Health:          be.health,
		Logger:          logger,
		ReviewURL:       cfg.ReviewURL,
		WebhookToken:    cfg.WebhookToken,
		WebhookSecret:   cfg.WebhookSecret,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Version:         Version,
		Commit:          Commit,
		BuildDate:       BuildDate,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sweeper := worker.New(worker.Deps{
		Store:         be.store,
		Logger:        logger,
		RetentionDays: cfg.RetentionDays,
		Interval:      cfg.CleanupInterval,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listening",
			"addr", cfg.HTTPAddr,
			"store", cfg.StoreDriver,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("api stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithMaxConns(cfg.DBMaxConns))
		if err != nil {
			return backend{}, fmt.Errorf("db connect: %w", err)
		}
		if cfg.AutoMigrate {
			if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
				pool.Close()
				return backend{}, fmt.Errorf("ensure schema: %w", err)
			}
		} else if err := postgres.SchemaReady(ctx, pool); err != nil {
			pool.Close()
			return backend{}, fmt.Errorf("schema not ready (set AUTO_MIGRATE=true): %w", err)
		}
		return backend{
			store:  repository.NewWorkflowRepository(pool, logger),
			health: postgres.NewSchemaHealthChecker(pool),
			close:  pool.Close,
		}, nil
	default:
		logger.Warn("using in-memory store; workflows are lost on restart")
		return backend{
			store: store.NewMemory(store.WithLogger(logger)),
			close: func() {},
		}, nil
	}
}
