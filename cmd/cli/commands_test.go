// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
)

type stubLister struct {
	pending []domain.PendingApprovalSummary
	err     error
}

func (s stubLister) ListPending(context.Context) ([]domain.PendingApprovalSummary, error) {
	return s.pending, s.err
}

type stubCleaner struct {
	removed int
	days    int
}

func (s *stubCleaner) Cleanup(_ context.Context, days int) (int, error) {
	s.days = days
	return s.removed, nil
}

func TestPrintPending(t *testing.T) {
	var out bytes.Buffer
	err := printPending(context.Background(), stubLister{pending: []domain.PendingApprovalSummary{{
		ApprovalID: "appr_0123456789ab",
		WorkflowID: "wf_1",
		Checkpoint: domain.CheckpointFinalQA,
		ClientName: "Acme",
		Topic:      "Launch",
		Priority:   domain.PriorityHigh,
		CreatedAt:  time.Now().Add(-time.Minute),
	}}}, &out)
	if err != nil {
		t.Fatalf("print pending: %v", err)
	}
	for _, want := range []string{"WORKFLOW", "wf_1", "final_qa", "appr_0123456789ab", "Acme"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}
}

func TestPrintPendingEmptyAndError(t *testing.T) {
	var out bytes.Buffer
	if err := printPending(context.Background(), stubLister{}, &out); err != nil {
		t.Fatalf("print pending: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no pending approvals" {
		t.Fatalf("unexpected output %q", out.String())
	}

	if err := printPending(context.Background(), stubLister{err: errors.New("boom")}, &out); err == nil {
		t.Fatal("expected lister error to propagate")
	}
}

func TestCleanupReportsRemoved(t *testing.T) {
	var out bytes.Buffer
	cleaner := &stubCleaner{removed: 4}

	if err := cleanup(context.Background(), cleaner, 14, &out); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if cleaner.days != 14 {
		t.Fatalf("expected 14 days passed through, got %d", cleaner.days)
	}
	if !strings.Contains(out.String(), "removed 4 workflow(s)") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunWaitPrintsDecision(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workflows/wf_9" {
			http.NotFound(w, r)
			return
		}
		wf := domain.Workflow{
			ID:                "wf_9",
			Status:            domain.WorkflowAwaitingApproval,
			CurrentCheckpoint: domain.CheckpointBrandVoice,
			ApprovalRequest:   &domain.ApprovalRequest{ApprovalID: "appr_9", CheckpointType: domain.CheckpointBrandVoice},
		}
		if calls.Add(1) > 1 {
			wf.Status = domain.WorkflowRejected
			wf.ApprovalHistory = []domain.DecisionRecord{{
				ApprovalID: "appr_9",
				Checkpoint: domain.CheckpointBrandVoice,
				Decision:   domain.DecisionReject,
				Feedback:   "off brand",
			}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(wf)
	}))
	defer srv.Close()

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := runWait(context.Background(), logger, []string{"wf_9", "-url", srv.URL, "-interval", "10ms", "-timeout", "5s"}, &out)
	if err != nil {
		t.Fatalf("run wait: %v", err)
	}

	var got waitOutput
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if got.Status != domain.WorkflowRejected || got.ApprovalID != "appr_9" || got.Decision == nil || got.Decision.Feedback != "off brand" {
		t.Fatalf("unexpected output %+v", got)
	}
}

func TestRunWaitIgnoresDecisionForOtherApproval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.Workflow{
			ID:                "wf_9",
			Status:            domain.WorkflowApproved,
			CurrentCheckpoint: domain.CheckpointBrandVoice,
			ApprovalHistory: []domain.DecisionRecord{{
				ApprovalID: "appr_voice",
				Checkpoint: domain.CheckpointBrandVoice,
				Decision:   domain.DecisionApprove,
			}},
		})
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := runWait(context.Background(), logger,
		[]string{"wf_9", "-approval", "appr_style", "-url", srv.URL, "-interval", "5ms", "-timeout", "50ms"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "still waiting") {
		t.Fatalf("expected wait to time out, got %v", err)
	}
}

func TestRunWaitRequiresWorkflowID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := runWait(context.Background(), logger, []string{"-timeout", "1s"}, io.Discard); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestSplitPositional(t *testing.T) {
	id, rest := splitPositional([]string{"wf_1", "-timeout", "5m"})
	if id != "wf_1" || len(rest) != 2 {
		t.Fatalf("unexpected split %q %v", id, rest)
	}
	id, rest = splitPositional([]string{"-timeout", "5m", "wf_1"})
	if id != "" || len(rest) != 3 {
		t.Fatalf("unexpected split %q %v", id, rest)
	}
}
