// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"net/http"
	"strings"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
	"github.com/adiadia/hitl-gateway/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createWorkflowRequest struct {
	WorkflowID     string `json:"workflow_id"`
	ClientName     string `json:"client_name"`
	Topic          string `json:"topic"`
	ContentType    string `json:"content_type"`
	Audience       string `json:"audience"`
	AILanguageCode string `json:"ai_language_code"`
}

type healthResponse struct {
	Status     string       `json:"status"`
	Timestamp  time.Time    `json:"timestamp"`
	Version    string       `json:"version"`
	Statistics domain.Stats `json:"statistics"`
	Error      string       `json:"error,omitempty"`
}

func newWorkflowID() string {
	return "wf_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (h *handler) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := decodeStrict(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	params := domain.CreateWorkflowParams{
		ID:             strings.TrimSpace(req.WorkflowID),
		ClientName:     strings.TrimSpace(req.ClientName),
		Topic:          strings.TrimSpace(req.Topic),
		ContentType:    strings.TrimSpace(req.ContentType),
		Audience:       strings.TrimSpace(req.Audience),
		AILanguageCode: strings.TrimSpace(req.AILanguageCode),
	}
	if params.ClientName == "" {
		writeError(w, h.logger, &domain.ValidationError{Field: "client_name", Reason: "is required"})
		return
	}
	if params.Topic == "" {
		writeError(w, h.logger, &domain.ValidationError{Field: "topic", Reason: "is required"})
		return
	}
	if params.ID == "" {
		params.ID = newWorkflowID()
	}

	wf, err := h.store.CreateWorkflow(r.Context(), params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	metrics.IncWorkflowStatus(wf.Status)

	h.logger.Info("workflow created", "workflow_id", wf.ID, "client_name", wf.ClientName)
	writeJSON(w, http.StatusCreated, wf)
}

func (h *handler) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.store.GetWorkflow(r.Context(), chi.URLParam(r, "workflow_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *handler) healthStats(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC(),
		Version:   h.version,
	}

	if h.health != nil {
		if err := h.health.Check(r.Context()); err != nil {
			h.logger.Warn("health dependency check failed", "error", err)
			resp.Status = "degraded"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp.Statistics = stats
	writeJSON(w, http.StatusOK, resp)
}
