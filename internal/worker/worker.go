// SPDX-License-Identifier: Apache-2.0

// Package worker runs the background retention sweep over the workflow
// store.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/adiadia/hitl-gateway/internal/metrics"
	"github.com/adiadia/hitl-gateway/internal/store"
)

type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int, error)
}

type Deps struct {
	Store         Cleaner
	Logger        *slog.Logger
	RetentionDays int
	Interval      time.Duration
}

type Sweeper struct {
	store         Cleaner
	logger        *slog.Logger
	retentionDays int
	interval      time.Duration
}

func New(deps Deps) *Sweeper {
	l := deps.Logger
	if l == nil {
		l = slog.Default()
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	return &Sweeper{
		store:         deps.Store,
		logger:        l,
		retentionDays: store.ClampRetentionDays(deps.RetentionDays),
		interval:      interval,
	}
}

// ProcessOnce deletes every workflow past the retention window and reports
// how many were removed.
func (s *Sweeper) ProcessOnce(ctx context.Context) (int, error) {
	started := time.Now()

	removed, err := s.store.Cleanup(ctx, s.retentionDays)
	if err != nil {
		s.logger.Error("retention sweep failed",
			"retention_days", s.retentionDays,
			"error", err,
		)
		return 0, err
	}

	metrics.AddWorkflowsCleaned(removed)
	if removed > 0 {
		s.logger.Info("retention sweep removed workflows",
			"removed", removed,
			"retention_days", s.retentionDays,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	} else {
		s.logger.Debug("retention sweep found nothing to remove", "retention_days", s.retentionDays)
	}
	return removed, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// Sweep failures are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("retention sweeper started",
		"interval", s.interval.String(),
		"retention_days", s.retentionDays,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		_, _ = s.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}
