// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/adiadia/hitl-gateway/internal/checkpoint"
	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/metrics"
	"github.com/adiadia/hitl-gateway/internal/notify"
)

type checkpointReceived struct {
	Status     string                `json:"status"`
	WorkflowID string                `json:"workflow_id"`
	Checkpoint domain.CheckpointType `json:"checkpoint"`
	ApprovalID string                `json:"approval_id"`
	Message    string                `json:"message"`
	ReviewURL  string                `json:"review_url"`
}

type activityReceived struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// checkpointWebhook accepts an agent's checkpoint notification for cp,
// builds the approval request, and parks the workflow until a reviewer
// decides.
func (h *handler) checkpointWebhook(cp domain.CheckpointType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var n domain.CheckpointNotification
		if err := decodeLenient(w, r, &n); err != nil {
			writeError(w, h.logger, err)
			return
		}
		switch n.CheckpointType {
		case "":
			n.CheckpointType = cp
		case cp:
		default:
			writeError(w, h.logger, &domain.ValidationError{
				Field:  "checkpoint_type",
				Reason: fmt.Sprintf("%s sent to the %s webhook", n.CheckpointType, cp.Slug()),
			})
			return
		}
		n.WorkflowID = strings.TrimSpace(n.WorkflowID)

		h.logger.Info("checkpoint notification received",
			"workflow_id", n.WorkflowID,
			"checkpoint", cp,
			"agent_name", n.AgentName,
		)

		req, err := h.builder.Build(ctx, n)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		wf, err := h.store.SaveCheckpointState(ctx, n.WorkflowID, cp, n.Content, n.Metadata, req)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		metrics.IncCheckpointReceived(cp)
		metrics.IncWorkflowStatus(wf.Status)

		h.publish(ctx, notify.StatusChange{
			WorkflowID: wf.ID,
			ApprovalID: req.ApprovalID,
			Checkpoint: cp,
			Status:     wf.Status,
			OccurredAt: wf.UpdatedAt,
		})

		writeJSON(w, http.StatusOK, checkpointReceived{
			Status:     "received",
			WorkflowID: wf.ID,
			Checkpoint: cp,
			ApprovalID: req.ApprovalID,
			Message:    checkpoint.ReceivedMessage(cp),
			ReviewURL:  h.reviewURL,
		})
	}
}

func (h *handler) agentUpdate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeLenient(w, r, &payload); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("agent update",
		"agent_name", payloadString(payload, "Unknown", "agent_name"),
		"step_type", payloadString(payload, "unknown", "step_type"),
		"workflow_id", payloadString(payload, "", "workflow_id", "kickoff_id"),
	)
	writeJSON(w, http.StatusOK, activityReceived{Status: "received", Message: "Agent update logged"})
}

func (h *handler) taskStatus(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeLenient(w, r, &payload); err != nil {
		writeError(w, h.logger, err)
		return
	}

	event := domain.TaskEvent{
		TaskID:     payloadString(payload, "Unknown", "task_id"),
		Status:     payloadString(payload, "unknown", "status"),
		AgentName:  payloadString(payload, "", "agent_name"),
		RecordedAt: h.now().UTC(),
	}
	h.logger.Info("task status", "task_id", event.TaskID, "status", event.Status)

	if id := payloadString(payload, "", "workflow_id", "kickoff_id"); id != "" {
		recorded, err := h.store.RecordTaskStatus(r.Context(), id, event)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if !recorded {
			h.logger.Debug("task status for unknown workflow", "workflow_id", id)
		}
	}
	writeJSON(w, http.StatusOK, activityReceived{Status: "received", Message: "Task status logged"})
}

func (h *handler) agentCompletion(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeLenient(w, r, &payload); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := payloadString(payload, "", "workflow_id", "kickoff_id")
	h.logger.Info("agent completion", "workflow_id", id)
	if id != "" {
		if err := h.finishWorkflow(r, id, domain.WorkflowCompleted); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, activityReceived{Status: "received", Message: "Completion logged"})
}

func (h *handler) errorNotification(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := decodeLenient(w, r, &payload); err != nil {
		writeError(w, h.logger, err)
		return
	}

	id := payloadString(payload, "", "workflow_id", "execution_id")
	h.logger.Error("agent error notification",
		"workflow_id", id,
		"error_type", payloadString(payload, "Unknown", "error_type"),
		"message", payloadString(payload, "No message", "message"),
	)
	if id != "" {
		if err := h.finishWorkflow(r, id, domain.WorkflowFailed); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, activityReceived{Status: "received", Message: "Error logged"})
}

// finishWorkflow moves a known workflow to a terminal status and announces
// it. Unknown ids are ignored.
func (h *handler) finishWorkflow(r *http.Request, id string, status domain.WorkflowStatus) error {
	updated, err := h.store.UpdateStatus(r.Context(), id, status, "")
	if err != nil {
		return err
	}
	if !updated {
		h.logger.Debug("status update for unknown workflow", "workflow_id", id, "status", status)
		return nil
	}
	metrics.IncWorkflowStatus(status)

	change := notify.StatusChange{WorkflowID: id, Status: status}
	if wf, err := h.store.GetWorkflow(r.Context(), id); err == nil {
		change.Checkpoint = wf.CurrentCheckpoint
		change.OccurredAt = wf.UpdatedAt
	}
	h.publish(r.Context(), change)
	return nil
}

// payloadString returns the first non-blank string value among keys.
func payloadString(payload map[string]any, fallback string, keys ...string) string {
	for _, key := range keys {
		if v, ok := payload[key]; ok && v != nil {
			s := strings.TrimSpace(fmt.Sprint(v))
			if s != "" {
				return s
			}
		}
	}
	return fallback
}
