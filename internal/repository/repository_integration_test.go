//go:build integration

// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

func approvalFor(id, workflowID string, cp domain.CheckpointType, createdAt time.Time) domain.ApprovalRequest {
	return domain.ApprovalRequest{
		ApprovalID:     id,
		WorkflowID:     workflowID,
		CheckpointType: cp,
		Title:          "Review",
		Description:    "desc",
		Content:        "draft",
		Questions:      []string{"ok?"},
		Options:        domain.DefaultOptions(),
		Priority:       domain.PriorityHigh,
		CreatedAt:      createdAt.UTC().Truncate(time.Microsecond),
	}
}

func TestWorkflowLifecycleIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}

	repo := NewWorkflowRepository(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))

	created, err := repo.CreateWorkflow(ctx, domain.CreateWorkflowParams{ID: "wf_1", ClientName: "Acme", Topic: "Launch"})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	if created.Status != domain.WorkflowInProgress {
		t.Fatalf("expected IN_PROGRESS got %s", created.Status)
	}
	if _, err := repo.CreateWorkflow(ctx, domain.CreateWorkflowParams{ID: "wf_1", ClientName: "Acme", Topic: "Launch"}); !errors.Is(err, domain.ErrDuplicateWorkflow) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	saved, err := repo.SaveCheckpointState(ctx, "wf_1", domain.CheckpointBrandVoice, "voice doc",
		map[string]any{"client_name": "Acme"}, approvalFor("appr_a", "wf_1", domain.CheckpointBrandVoice, time.Now()))
	if err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}
	if saved.Status != domain.WorkflowAwaitingApproval || saved.CurrentCheckpoint != domain.CheckpointBrandVoice {
		t.Fatalf("unexpected workflow after checkpoint: %+v", saved)
	}
	if !saved.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("expected updated_at to advance")
	}

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].WorkflowID != "wf_1" || pending[0].ClientName != "Acme" {
		t.Fatalf("unexpected pending %+v", pending)
	}

	_, err = repo.ResolveApproval(ctx, "wf_1", domain.ApprovalResponse{
		Decision: domain.DecisionApprove, Checkpoint: domain.CheckpointFinalQA, Feedback: "ok",
	})
	if !errors.Is(err, domain.ErrCheckpointMismatch) {
		t.Fatalf("expected checkpoint mismatch, got %v", err)
	}

	resolved, err := repo.ResolveApproval(ctx, "wf_1", domain.ApprovalResponse{
		Decision:        domain.DecisionReject,
		Checkpoint:      domain.CheckpointBrandVoice,
		Feedback:        "too formal",
		SpecificChanges: []string{"casual"},
	})
	if err != nil {
		t.Fatalf("resolve approval: %v", err)
	}
	if resolved.Status != domain.WorkflowRejected || len(resolved.ApprovalHistory) != 1 {
		t.Fatalf("unexpected resolved workflow %+v", resolved)
	}
	if resolved.ApprovalHistory[0].ApprovalID != "appr_a" {
		t.Fatalf("expected history to reference approval, got %+v", resolved.ApprovalHistory[0])
	}

	pending, err = repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending approvals, got %+v", pending)
	}

	req, err := repo.GetApproval(ctx, "appr_a")
	if err != nil {
		t.Fatalf("get approval: %v", err)
	}
	if req.CheckpointType != domain.CheckpointBrandVoice || len(req.Options) != 3 {
		t.Fatalf("unexpected approval %+v", req)
	}

	ok, err := repo.RecordTaskStatus(ctx, "wf_1", domain.TaskEvent{TaskID: "brand_voice_analysis_task", Status: "completed"})
	if err != nil || !ok {
		t.Fatalf("record task status: ok=%v err=%v", ok, err)
	}
	ok, err = repo.RecordDecision(ctx, "wf_1", domain.CheckpointBrandVoice, domain.DecisionApprove, "second look")
	if err != nil || !ok {
		t.Fatalf("record decision: ok=%v err=%v", ok, err)
	}
	ok, err = repo.RecordDecision(ctx, "missing", domain.CheckpointBrandVoice, domain.DecisionApprove, "")
	if err != nil || ok {
		t.Fatalf("expected false for unknown workflow: ok=%v err=%v", ok, err)
	}
	ok, err = repo.UpdateStatus(ctx, "missing", domain.WorkflowCompleted, "")
	if err != nil || ok {
		t.Fatalf("expected false for unknown workflow: ok=%v err=%v", ok, err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalWorkflows != 1 || stats.RejectedToday != 1 || stats.ApprovedToday != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	removed, err := repo.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}

	repo.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	removed, err = repo.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := repo.GetApproval(ctx, "appr_a"); !errors.Is(err, domain.ErrApprovalNotFound) {
		t.Fatalf("expected approval cascade delete, got %v", err)
	}
}

func TestApprovalIDReuseIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}

	repo := NewWorkflowRepository(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	created := time.Now().Add(-time.Minute)

	if _, err := repo.SaveCheckpointState(ctx, "wf_1", domain.CheckpointBrandVoice, "voice doc", nil,
		approvalFor("appr_x", "wf_1", domain.CheckpointBrandVoice, created)); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	_, err := repo.SaveCheckpointState(ctx, "wf_2", domain.CheckpointFinalQA, "other", nil,
		approvalFor("appr_x", "wf_2", domain.CheckpointFinalQA, time.Now()))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for foreign reuse, got %v", err)
	}
	if _, err := repo.GetWorkflow(ctx, "wf_2"); !errors.Is(err, domain.ErrWorkflowNotFound) {
		t.Fatalf("expected rejected save to roll back, got %v", err)
	}

	_, err = repo.SaveCheckpointState(ctx, "wf_1", domain.CheckpointFinalQA, "final", nil,
		approvalFor("appr_x", "wf_1", domain.CheckpointFinalQA, time.Now()))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for checkpoint reuse, got %v", err)
	}

	resaved := approvalFor("appr_x", "wf_1", domain.CheckpointBrandVoice, time.Now())
	resaved.Title = "rewritten"
	if _, err := repo.SaveCheckpointState(ctx, "wf_1", domain.CheckpointBrandVoice, "voice doc", nil, resaved); err != nil {
		t.Fatalf("identical re-save: %v", err)
	}

	req, err := repo.GetApproval(ctx, "appr_x")
	if err != nil {
		t.Fatalf("get approval: %v", err)
	}
	if req.WorkflowID != "wf_1" || req.CheckpointType != domain.CheckpointBrandVoice || req.Title != "Review" {
		t.Fatalf("expected indexed request unchanged, got %+v", req)
	}
	if !req.CreatedAt.Equal(created.UTC().Truncate(time.Microsecond)) {
		t.Fatalf("expected created_at kept, got %s", req.CreatedAt)
	}

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].WorkflowID != "wf_1" || pending[0].ApprovalID != "appr_x" {
		t.Fatalf("unexpected pending %+v", pending)
	}
}

func TestConcurrentResolveIntegration(t *testing.T) {
	ctx := context.Background()
	pool := integrationPool(t, ctx)
	defer pool.Close()

	if err := truncateAll(ctx, pool); err != nil {
		t.Skipf("skip integration test: database not reachable (%v)", err)
	}

	repo := NewWorkflowRepository(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := repo.SaveCheckpointState(ctx, "wf_race", domain.CheckpointFinalQA, "final", nil,
		approvalFor("appr_r", "wf_race", domain.CheckpointFinalQA, time.Now())); err != nil {
		t.Fatalf("save checkpoint: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ResolveApproval(ctx, "wf_race", domain.ApprovalResponse{
				Decision: domain.DecisionApprove, Checkpoint: domain.CheckpointFinalQA, Feedback: "ship it",
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrInvalidState) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one resolution, got %d", succeeded)
	}
	wf, err := repo.GetWorkflow(ctx, "wf_race")
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if len(wf.ApprovalHistory) != 1 {
		t.Fatalf("expected one history entry, got %d", len(wf.ApprovalHistory))
	}
}

func truncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `TRUNCATE TABLE task_events, approval_history, approval_requests, workflows RESTART IDENTITY CASCADE`)
	return err
}

func integrationPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DATABASE_URL to run integration tests")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		t.Skipf("skip integration test: cannot create pgx pool (%v)", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: cannot reach database (%v)", err)
	}

	return pool
}
