// SPDX-License-Identifier: Apache-2.0

// Package resume is the pipeline side of a checkpoint: it reads workflow
// status from the gateway and blocks until a reviewer has decided.
package resume

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adiadia/hitl-gateway/internal/domain"
)

// Client is a small HTTP client for the gateway's read endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      token,
		httpClient: httpClient,
	}
}

func (c *Client) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	var wf domain.Workflow
	err := c.get(ctx, "/workflows/"+url.PathEscape(id), &wf)
	return wf, err
}

func (c *Client) ListPending(ctx context.Context) ([]domain.PendingApprovalSummary, error) {
	var out struct {
		Pending []domain.PendingApprovalSummary `json:"pending_approvals"`
	}
	if err := c.get(ctx, "/approvals/pending", &out); err != nil {
		return nil, err
	}
	return out.Pending, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.ErrWorkflowNotFound
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GET %s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// ErrNoPendingApproval is returned by Wait when no approval id was given and
// the workflow has no approval waiting on a reviewer.
var ErrNoPendingApproval = errors.New("workflow has no pending approval")

// Result is the resolved state a paused run resumes with.
type Result struct {
	Workflow domain.Workflow
	// Status is the status the decision on the awaited approval produced, or
	// COMPLETED/FAILED when the run ended without one.
	Status     domain.WorkflowStatus
	ApprovalID string
	// Decision is nil when the run was resolved without a reviewer.
	Decision *domain.DecisionRecord
}

type workflowGetter interface {
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
}

// Poller waits for a decision on one approval. Timeouts and cancellation
// come from the caller's context.
type Poller struct {
	source   workflowGetter
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(source workflowGetter, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, interval: interval, logger: logger}
}

// Wait polls workflow id until the approval approvalID has a decision in the
// workflow's history, or the workflow is COMPLETED or FAILED. A status left
// over from an earlier checkpoint never ends the wait.
//
// An empty approvalID means the approval pending at the first successful
// poll; ErrNoPendingApproval is returned when there is none. Transient read
// errors are logged and retried; an unknown workflow ends the wait.
func (p *Poller) Wait(ctx context.Context, id, approvalID string) (Result, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		wf, err := p.source.GetWorkflow(ctx, id)
		switch {
		case err == nil:
			if approvalID == "" {
				approvalID, err = pendingApprovalID(wf)
				if err != nil {
					return Result{}, err
				}
				p.logger.Debug("waiting on current approval", "workflow_id", id, "approval_id", approvalID)
			}
			if res, ok := resolution(wf, approvalID); ok {
				p.logger.Info("approval resolved", "workflow_id", id, "approval_id", approvalID, "status", res.Status)
				return res, nil
			}
			p.logger.Debug("waiting for approval", "workflow_id", id, "approval_id", approvalID, "status", wf.Status)
		case errors.Is(err, domain.ErrWorkflowNotFound):
			return Result{}, err
		default:
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			p.logger.Warn("workflow poll failed", "workflow_id", id, "error", err)
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func pendingApprovalID(wf domain.Workflow) (string, error) {
	if wf.Status == domain.WorkflowCompleted || wf.Status == domain.WorkflowFailed {
		return "", nil
	}
	if wf.Status != domain.WorkflowAwaitingApproval || wf.CurrentApprovalID() == "" {
		return "", fmt.Errorf("%w: workflow %s is %s", ErrNoPendingApproval, wf.ID, wf.Status)
	}
	return wf.CurrentApprovalID(), nil
}

func resolution(wf domain.Workflow, approvalID string) (Result, bool) {
	if approvalID != "" {
		for i := len(wf.ApprovalHistory) - 1; i >= 0; i-- {
			rec := wf.ApprovalHistory[i]
			if rec.ApprovalID != approvalID {
				continue
			}
			return Result{
				Workflow:   wf,
				Status:     rec.Decision.ResultingStatus(),
				ApprovalID: approvalID,
				Decision:   &rec,
			}, true
		}
	}
	if wf.Status == domain.WorkflowCompleted || wf.Status == domain.WorkflowFailed {
		return Result{Workflow: wf, Status: wf.Status, ApprovalID: approvalID}, true
	}
	return Result{}, false
}
