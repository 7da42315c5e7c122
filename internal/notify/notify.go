// SPDX-License-Identifier: Apache-2.0

// Package notify tells paused pipeline runs that their checkpoint has been
// resolved. The store only records status; delivering the news is a separate
// step that never rolls back a recorded decision.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/metrics"
)

// StatusChange is published after a decision has been applied to a workflow.
// OccurredAt is the workflow's updated_at after the change. It strictly
// increases per workflow, so consumers order changes by it and drop ones
// older than what they have already seen; delivery order is not guaranteed.
type StatusChange struct {
	WorkflowID string                `json:"workflow_id"`
	ApprovalID string                `json:"approval_id,omitempty"`
	Checkpoint domain.CheckpointType `json:"checkpoint,omitempty"`
	Status     domain.WorkflowStatus `json:"status"`
	Decision   domain.Decision       `json:"decision,omitempty"`
	NextAction string                `json:"next_action,omitempty"`
	Feedback   string                `json:"feedback,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, change StatusChange) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, change StatusChange) error

func (f NotifierFunc) Notify(ctx context.Context, change StatusChange) error {
	return f(ctx, change)
}

// Nop drops every change.
var Nop Notifier = NotifierFunc(func(context.Context, StatusChange) error { return nil })

// Sink is a named Notifier; the name labels failure metrics and logs.
type Sink struct {
	Name     string
	Notifier Notifier
}

// Multi delivers to every sink in order and joins their errors. A failing
// sink does not stop delivery to the others.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{sinks: sinks, logger: logger}
}

func (m *Multi) Notify(ctx context.Context, change StatusChange) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Notifier.Notify(ctx, change); err != nil {
			metrics.IncNotifyFailure(sink.Name)
			m.logger.Warn("status notification failed",
				"sink", sink.Name,
				"workflow_id", change.WorkflowID,
				"status", change.Status,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async runs deliveries in the background so request handlers return as
// soon as the decision is stored. Wait blocks until in-flight deliveries
// finish.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewAsync(next Notifier, timeout time.Duration, logger *slog.Logger) *Async {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

// Notify always returns nil; failures are logged by the wrapped notifier.
func (a *Async) Notify(ctx context.Context, change StatusChange) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.next.Notify(dctx, change); err != nil {
			a.logger.Debug("async notification finished with errors", "workflow_id", change.WorkflowID, "error", err)
		}
	}()
	return nil
}

func (a *Async) Wait() {
	a.wg.Wait()
}
