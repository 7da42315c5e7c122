// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/adiadia/hitl-gateway/internal/notify"
	"github.com/go-chi/chi/v5"
)

const sseEventStatus = "status"

// streamWorkflowEvents writes the workflow's current status followed by
// every status change published for it until the client disconnects.
func (h *handler) streamWorkflowEvents(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflow_id")

	if h.events == nil {
		h.logger.Error("sse status subscriber is not configured")
		http.Error(w, "failed to stream events", http.StatusInternalServerError)
		return
	}

	// Subscribe before reading the snapshot so no change between the two is
	// lost.
	changes, cancel := h.events.Subscribe(workflowID)
	defer cancel()

	wf, err := h.store.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snapshot := notify.StatusChange{
		WorkflowID: wf.ID,
		Checkpoint: wf.CurrentCheckpoint,
		Status:     wf.Status,
		OccurredAt: wf.UpdatedAt,
	}
	if wf.ApprovalRequest != nil {
		snapshot.ApprovalID = wf.ApprovalRequest.ApprovalID
	}
	if err := writeSSE(w, sseEventStatus, snapshot); err != nil {
		h.logger.Error("sse initial write failed", "workflow_id", workflowID, "error", err)
		return
	}
	flusher.Flush()

	lastSent := snapshot.OccurredAt
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if staleChange(change, lastSent) {
				h.logger.Debug("sse dropped stale change", "workflow_id", workflowID, "status", change.Status)
				continue
			}
			if change.OccurredAt.After(lastSent) {
				lastSent = change.OccurredAt
			}
			if err := writeSSE(w, sseEventStatus, change); err != nil {
				h.logger.Error("sse write failed", "workflow_id", workflowID, "error", err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// staleChange reports whether change predates the last event sent. Stored
// updated_at strictly increases per workflow.
func staleChange(change notify.StatusChange, lastSent time.Time) bool {
	return !change.OccurredAt.IsZero() && change.OccurredAt.Before(lastSent)
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
