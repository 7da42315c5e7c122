// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"net/http"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/metrics"
	"github.com/adiadia/hitl-gateway/internal/notify"
	"github.com/go-chi/chi/v5"
)

type submitResponse struct {
	Status     string          `json:"status"`
	WorkflowID string          `json:"workflow_id"`
	Decision   domain.Decision `json:"decision"`
	NextAction string          `json:"next_action"`
	Message    string          `json:"message"`
	AutoResume bool            `json:"auto_resume"`
}

type pendingResponse struct {
	Count   int                             `json:"count"`
	Pending []domain.PendingApprovalSummary `json:"pending_approvals"`
}

func (h *handler) listPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.ListPending(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if pending == nil {
		pending = []domain.PendingApprovalSummary{}
	}
	writeJSON(w, http.StatusOK, pendingResponse{Count: len(pending), Pending: pending})
}

func (h *handler) getApproval(w http.ResponseWriter, r *http.Request) {
	req, err := h.store.GetApproval(r.Context(), chi.URLParam(r, "approval_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// submitApproval validates a reviewer decision, computes the next pipeline
// action, and applies the decision atomically. Two reviewers racing on the
// same checkpoint see exactly one success; the other gets invalid_state.
func (h *handler) submitApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workflowID := chi.URLParam(r, "workflow_id")

	var resp domain.ApprovalResponse
	if err := decodeStrict(w, r, &resp); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := resp.Validate(); err != nil {
		writeError(w, h.logger, err)
		return
	}

	wf, err := h.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if wf.Status != domain.WorkflowAwaitingApproval {
		writeError(w, h.logger, &domain.InvalidStateError{WorkflowID: workflowID, Status: wf.Status})
		return
	}

	outcome, err := h.processor.Process(workflowID, wf, resp)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	updated, err := h.store.ResolveApproval(ctx, workflowID, resp)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	metrics.IncDecision(resp.Checkpoint, resp.Decision)
	metrics.IncWorkflowStatus(updated.Status)
	if wf.ApprovalRequest != nil {
		metrics.ObserveDecisionLatency(h.now().Sub(wf.ApprovalRequest.CreatedAt))
	}

	h.logger.Info("decision applied",
		"workflow_id", workflowID,
		"checkpoint", resp.Checkpoint,
		"decision", resp.Decision,
		"status", updated.Status,
		"next_action", outcome.NextAction,
	)

	change := notify.StatusChange{
		WorkflowID: workflowID,
		Checkpoint: resp.Checkpoint,
		Status:     updated.Status,
		Decision:   resp.Decision,
		NextAction: outcome.NextAction,
		Feedback:   resp.Feedback,
		OccurredAt: updated.UpdatedAt,
	}
	if n := len(updated.ApprovalHistory); n > 0 {
		change.ApprovalID = updated.ApprovalHistory[n-1].ApprovalID
	}
	h.publish(ctx, change)

	writeJSON(w, http.StatusOK, submitResponse{
		Status:     "success",
		WorkflowID: workflowID,
		Decision:   resp.Decision,
		NextAction: outcome.NextAction,
		Message:    outcome.Message,
		AutoResume: true,
	})
}

// publish hands change to the notifier. A failed notification is logged and
// never undoes the recorded state.
func (h *handler) publish(ctx context.Context, change notify.StatusChange) {
	if change.OccurredAt.IsZero() {
		change.OccurredAt = h.now().UTC()
	}
	if err := h.notifier.Notify(ctx, change); err != nil {
		h.logger.Warn("status notification failed",
			"workflow_id", change.WorkflowID,
			"status", change.Status,
			"error", err,
		)
	}
}
